package types

// ProfileInfo contains user profile metadata (kind 0)
type ProfileInfo struct {
	Name        string `json:"name,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	Picture     string `json:"picture,omitempty"`
	About       string `json:"about,omitempty"`
	Lud16       string `json:"lud16,omitempty"`
	Lud06       string `json:"lud06,omitempty"`
}

// HasLightningAddress reports whether the profile declares a tip address
// in either lud16 (lightning address) or lud06 (bech32 LNURL) form.
func (p *ProfileInfo) HasLightningAddress() bool {
	if p == nil {
		return false
	}
	return p.Lud16 != "" || p.Lud06 != ""
}
