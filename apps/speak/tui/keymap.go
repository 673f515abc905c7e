package tui

// Key binding constants used in handleKey.
const (
	KeyQuit   = "q"
	KeyCtrlC  = "ctrl+c"
	KeySpace  = " "
	KeyRecord = "r"
	KeyPlay   = "p"
	KeySubmit = "s"
	KeyYes    = "y"
	KeyNo     = "n"
	KeyEnter  = "enter"
	KeyEsc    = "esc"
)
