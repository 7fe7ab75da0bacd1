package types

// RelayList represents a user's NIP-65 relay list
type RelayList struct {
	Read  []string
	Write []string
}
