package domain

import "context"

// InboundPayload is a raw message the page posted through the inbound channel,
// tagged with the origin of the script context that posted it.
type InboundPayload struct {
	Origin  string
	Payload string
}

// SurfaceConfig is what the transport asks a factory to install on a new surface.
type SurfaceConfig struct {
	ID              string
	Channel         string // name of the inbound channel exposed to page scripts
	BootstrapScript string // runs before any page script on every document
	OnMessage       func(InboundPayload)
}

// Surface is one embedded web rendering context. Implementations must make
// Evaluate and Close safe to call after the surface has been torn down.
type Surface interface {
	ID() string
	// Load begins navigation and returns without waiting for the page.
	Load(url string) error
	Evaluate(script string) error
	// Origin is the origin of the top-level document currently loaded.
	Origin() string
	// Close stops loading, removes the channel and injected scripts, blanks
	// the document and releases the surface.
	Close() error
}

// SurfaceFactory creates surfaces on the host platform.
type SurfaceFactory interface {
	NewSurface(ctx context.Context, cfg SurfaceConfig) (Surface, error)
}

// Presenter shows and hides the chrome around a surface (modal, window, dialog).
type Presenter interface {
	Present(s Surface) error
	Dismiss(s Surface) error
}
