package domain

// AvailableAddon describes an installable image declared in the local catalog.
type AvailableAddon struct {
	Name        string
	Image       string
	Description string
	Version     string
	// InternalPort is the port the addon listens on inside its container.
	// Zero means the runtime detects it from the image.
	InternalPort int
}
