package main

import (
	"os"

	"golang.org/x/term"

	"github.com/asheshgoplani/panewatch/internal/monitor"
)

// startCancelKeyListener puts stdin into raw mode and watches for a cancel
// key (q, Esc, or Ctrl+C) out of band. Returns a stop function that restores
// the terminal. When stdin is not a terminal (cron, CI) it does nothing.
func startCancelKeyListener(cancel *monitor.CancelFlag) func() {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return func() {}
	}

	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return func() {}
	}

	done := make(chan struct{})
	go func() {
		buf := make([]byte, 1)
		for {
			select {
			case <-done:
				return
			default:
			}
			n, err := os.Stdin.Read(buf)
			if err != nil || n == 0 {
				return
			}
			switch buf[0] {
			case 'q', 'Q':
				cancel.Cancel("q pressed")
				return
			case 0x1b: // Esc
				cancel.Cancel("escape pressed")
				return
			case 0x03: // Ctrl+C (raw mode swallows the signal)
				cancel.Cancel("interrupt")
				return
			}
		}
	}()

	return func() {
		close(done)
		_ = term.Restore(fd, oldState)
	}
}
