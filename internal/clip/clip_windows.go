//go:build windows

package clip

// #cgo LDFLAGS: -luser32
//
// #include <windows.h>
// #include <stdlib.h>
//
// static LRESULT CALLBACK keepsake_wnd_proc(HWND hwnd, UINT msg, WPARAM wp, LPARAM lp) {
//     if (msg == WM_CLIPBOARDUPDATE) {
//         PostMessage(hwnd, WM_USER + 1, 0, 0);
//         return 0;
//     }
//     return DefWindowProc(hwnd, msg, wp, lp);
// }
//
// static HWND keepsake_create_listener_window() {
//     WNDCLASS wc = {0};
//     wc.lpfnWndProc   = keepsake_wnd_proc;
//     wc.hInstance     = GetModuleHandle(NULL);
//     wc.lpszClassName = "KeepsakeClipboard";
//     RegisterClass(&wc);
//     HWND hwnd = CreateWindowEx(0, "KeepsakeClipboard", NULL, 0,
//         0, 0, 0, 0, HWND_MESSAGE, NULL, GetModuleHandle(NULL), NULL);
//     AddClipboardFormatListener(hwnd);
//     return hwnd;
// }
//
// static void keepsake_destroy_listener_window(HWND hwnd) {
//     RemoveClipboardFormatListener(hwnd);
//     DestroyWindow(hwnd);
// }
//
// static void keepsake_pump_messages(HWND hwnd, int* changed) {
//     MSG msg;
//     *changed = 0;
//     while (PeekMessage(&msg, hwnd, 0, 0, PM_REMOVE)) {
//         if (msg.message == WM_USER + 1) { *changed = 1; }
//         TranslateMessage(&msg);
//         DispatchMessage(&msg);
//     }
// }
//
// static int keepsake_formats() {
//     int f = 0;
//     if (IsClipboardFormatAvailable(CF_UNICODETEXT)) { f |= 1; }
//     if (IsClipboardFormatAvailable(CF_DIB) || IsClipboardFormatAvailable(CF_BITMAP)) { f |= 2; }
//     return f;
// }
import "C"

import (
	"errors"
	"log/slog"
	"runtime"
	"time"

	"golang.design/x/clipboard"
)

type windowsBackend struct {
	watchCh chan struct{}
	done    chan struct{}
}

// New returns the Windows clipboard backend using AddClipboardFormatListener.
// clipboard.Init is called here rather than in init() so that CLI sub-commands
// that never construct a Backend don't log spurious warnings.
func New() Backend {
	if err := clipboard.Init(); err != nil {
		slog.Warn("clipboard init failed", "err", err)
	}
	b := &windowsBackend{
		watchCh: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go b.pump()
	return b
}

func (b *windowsBackend) Name() string { return "Windows Clipboard" }

// pump owns the listener window. Window messages are delivered to the queue
// of the creating thread, so the window must be created and pumped on the
// same locked OS thread.
func (b *windowsBackend) pump() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	hwnd := C.keepsake_create_listener_window()
	defer C.keepsake_destroy_listener_window(hwnd)

	t := time.NewTicker(50 * time.Millisecond)
	defer t.Stop()
	for {
		select {
		case <-b.done:
			return
		case <-t.C:
			var changed C.int
			C.keepsake_pump_messages(hwnd, &changed)
			if changed != 0 {
				select {
				case b.watchCh <- struct{}{}:
				default:
				}
			}
		}
	}
}

// DetectFormat probes the available clipboard formats. File lists (CF_HDROP)
// are not read by this backend.
func (b *windowsBackend) DetectFormat() Format {
	return Format(C.keepsake_formats())
}

func (b *windowsBackend) ReadContent(f Format) (RawContent, error) {
	switch f {
	case FormatText:
		data := clipboard.Read(clipboard.FmtText)
		if len(data) == 0 {
			return RawContent{}, errors.New("text content gone")
		}
		return RawContent{Format: FormatText, Data: data}, nil
	case FormatImage:
		data := clipboard.Read(clipboard.FmtImage)
		if len(data) == 0 {
			return RawContent{}, errors.New("image content gone")
		}
		return RawContent{Format: FormatImage, Data: data}, nil
	default:
		return RawContent{}, errors.New("unsupported format: " + f.String())
	}
}

func (b *windowsBackend) Write(rc RawContent) error {
	switch rc.Format {
	case FormatText:
		clipboard.Write(clipboard.FmtText, rc.Data)
	case FormatImage:
		clipboard.Write(clipboard.FmtImage, rc.Data)
	default:
		return errors.New("cannot write format: " + rc.Format.String())
	}
	return nil
}

func (b *windowsBackend) FrontmostApp() (AppIdentity, bool) { return AppIdentity{}, false }

func (b *windowsBackend) AppIcon(_ AppIdentity) ([]byte, bool) { return nil, false }

func (b *windowsBackend) Watch() <-chan struct{} { return b.watchCh }
func (b *windowsBackend) Close()                 { close(b.done) }
