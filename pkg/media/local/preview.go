package local

import (
	"sync"

	"gocv.io/x/gocv"

	"github.com/MrWong99/mockinterview/pkg/media"
)

// Preview renders an attached video track in an OpenCV window.
type Preview struct {
	title string

	mu     sync.Mutex
	window *gocv.Window
	cancel func()
	done   chan struct{}
}

var _ media.Preview = (*Preview)(nil)

// NewPreview creates a preview whose window is opened lazily on first Attach.
func NewPreview(title string) *Preview {
	return &Preview{title: title}
}

// Attach implements [media.Preview].
func (p *Preview) Attach(t media.Track) {
	if t == nil || t.Kind() != media.KindVideo {
		return
	}
	p.Detach()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.window == nil {
		p.window = gocv.NewWindow(p.title)
	}
	frames, cancel := t.Subscribe()
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.render(p.window, frames, p.done)
}

// Detach implements [media.Preview].
func (p *Preview) Detach() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// Close detaches and destroys the window.
func (p *Preview) Close() error {
	p.Detach()
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.window == nil {
		return nil
	}
	err := p.window.Close()
	p.window = nil
	return err
}

func (p *Preview) render(w *gocv.Window, frames <-chan []byte, done chan struct{}) {
	defer close(done)
	for frame := range frames {
		img, err := gocv.IMDecode(frame, gocv.IMReadColor)
		if err != nil {
			continue
		}
		if !img.Empty() {
			w.IMShow(img)
			w.WaitKey(1)
		}
		img.Close()
	}
}
