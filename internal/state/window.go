package state

import "strings"

// Workspace identifies the workspace a window lives on.
type Workspace struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Window is the attribute snapshot of a Hyprland client at the time of a bell.
type Window struct {
	Address   string    `json:"address"`
	Class     string    `json:"class"`
	Title     string    `json:"title"`
	Floating  bool      `json:"floating"`
	XWayland  bool      `json:"xwayland"`
	Workspace Workspace `json:"workspace"`
}

// Windows is the client list reported by the compositor.
type Windows []Window

// FindByAddress returns the window with the given address, or nil.
// Both "0x558e91924520" and "558e91924520" refer to the same window.
func (ws Windows) FindByAddress(address string) *Window {
	want := NormalizeAddress(address)
	if want == "" {
		return nil
	}
	for i := range ws {
		if NormalizeAddress(ws[i].Address) == want {
			return &ws[i]
		}
	}
	return nil
}

// NormalizeAddress strips the 0x prefix and lowercases a window address.
func NormalizeAddress(address string) string {
	address = strings.TrimSpace(address)
	address = strings.TrimPrefix(strings.TrimPrefix(address, "0x"), "0X")
	return strings.ToLower(address)
}
