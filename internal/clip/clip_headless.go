package clip

import "errors"

// headlessBackend is a no-op clipboard backend for environments without a
// display server (headless Linux servers, containers, CI). It never produces
// Watch events and rejects writes.
type headlessBackend struct {
	watchCh chan struct{}
}

func (b *headlessBackend) Name() string           { return "headless (no-op)" }
func (b *headlessBackend) DetectFormat() Format   { return 0 }
func (b *headlessBackend) Watch() <-chan struct{} { return b.watchCh }
func (b *headlessBackend) Close()                 {}

func (b *headlessBackend) ReadContent(_ Format) (RawContent, error) {
	return RawContent{}, errors.New("headless: no clipboard")
}

func (b *headlessBackend) Write(_ RawContent) error {
	return errors.New("headless: no clipboard")
}

func (b *headlessBackend) FrontmostApp() (AppIdentity, bool)    { return AppIdentity{}, false }
func (b *headlessBackend) AppIcon(_ AppIdentity) ([]byte, bool) { return nil, false }
