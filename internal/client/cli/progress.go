package cli

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/dmitrijs2005/safeshare/internal/transfer"
	"golang.org/x/term"
)

// isTerminal is a seam for tests.
var isTerminal = func(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// progressBar redraws one line on terminals and stays silent otherwise, so
// piped output only carries the final result.
type progressBar struct {
	mu    sync.Mutex
	w     io.Writer
	label string
	tty   bool
	last  int
	drawn bool
}

func newProgressBar(w io.Writer, label string) *progressBar {
	return &progressBar{w: w, label: label, tty: isTerminal(w), last: -1}
}

func (p *progressBar) report() transfer.Progress {
	return func(done, total int64) {
		p.mu.Lock()
		defer p.mu.Unlock()
		if !p.tty {
			return
		}

		pct := 100
		if total > 0 {
			pct = int(done * 100 / total)
		}
		if pct == p.last {
			return
		}
		p.last = pct
		p.drawn = true
		fmt.Fprintf(p.w, "\r%s %3d%% (%s / %s)", p.label, pct, humanBytes(done), humanBytes(total))
	}
}

// end terminates the progress line if one was drawn.
func (p *progressBar) end() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.drawn {
		fmt.Fprintln(p.w)
		p.drawn = false
	}
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
