//go:build darwin

package clip

// #cgo CFLAGS: -x objective-c
// #cgo LDFLAGS: -framework Cocoa -framework QuickLook -framework CoreGraphics -framework ImageIO
// #import <Cocoa/Cocoa.h>
// #import <QuickLook/QuickLook.h>
// #import <ImageIO/ImageIO.h>
// #include <stdlib.h>
// #include <string.h>
//
// NSInteger keepsake_change_count() {
//     return [[NSPasteboard generalPasteboard] changeCount];
// }
//
// // Bitmask matching the Go Format constants: 1 text, 2 image, 4 files.
// int keepsake_formats() {
//     int f = 0;
//     @autoreleasepool {
//         NSPasteboard *pb = [NSPasteboard generalPasteboard];
//         if ([pb canReadItemWithDataConformingToTypes:@[NSPasteboardTypeString]]) {
//             f |= 1;
//         }
//         if ([pb canReadItemWithDataConformingToTypes:@[NSPasteboardTypePNG, NSPasteboardTypeTIFF]]) {
//             f |= 2;
//         }
//         NSDictionary *opts = @{NSPasteboardURLReadingFileURLsOnlyKey: @YES};
//         if ([pb canReadObjectForClasses:@[[NSURL class]] options:opts]) {
//             f |= 4;
//         }
//     }
//     return f;
// }
//
// // Newline-joined absolute paths of file URLs on the pasteboard, or NULL.
// char *keepsake_read_files() {
//     char *out = NULL;
//     @autoreleasepool {
//         NSPasteboard *pb = [NSPasteboard generalPasteboard];
//         NSDictionary *opts = @{NSPasteboardURLReadingFileURLsOnlyKey: @YES};
//         NSArray *urls = [pb readObjectsForClasses:@[[NSURL class]] options:opts];
//         if (urls == nil || urls.count == 0) {
//             return NULL;
//         }
//         NSMutableArray *paths = [NSMutableArray arrayWithCapacity:urls.count];
//         for (NSURL *u in urls) {
//             if (u.path != nil) {
//                 [paths addObject:u.path];
//             }
//         }
//         if (paths.count == 0) {
//             return NULL;
//         }
//         out = strdup([[paths componentsJoinedByString:@"\n"] UTF8String]);
//     }
//     return out;
// }
//
// int keepsake_write_files(const char *joined) {
//     int ok = 0;
//     @autoreleasepool {
//         NSString *s = [NSString stringWithUTF8String:joined];
//         NSArray *parts = [s componentsSeparatedByString:@"\n"];
//         NSMutableArray *urls = [NSMutableArray arrayWithCapacity:parts.count];
//         for (NSString *p in parts) {
//             if (p.length > 0) {
//                 [urls addObject:[NSURL fileURLWithPath:p]];
//             }
//         }
//         NSPasteboard *pb = [NSPasteboard generalPasteboard];
//         [pb clearContents];
//         ok = [pb writeObjects:urls] ? 1 : 0;
//     }
//     return ok;
// }
//
// void keepsake_frontmost_app(char **name, char **bundle) {
//     *name = NULL;
//     *bundle = NULL;
//     @autoreleasepool {
//         NSRunningApplication *app = [[NSWorkspace sharedWorkspace] frontmostApplication];
//         if (app == nil) {
//             return;
//         }
//         if (app.localizedName != nil) {
//             *name = strdup([app.localizedName UTF8String]);
//         }
//         if (app.bundleIdentifier != nil) {
//             *bundle = strdup([app.bundleIdentifier UTF8String]);
//         }
//     }
// }
//
// static void *keepsake_png_from_nsimage(NSImage *img, int *len) {
//     if (img == nil) {
//         return NULL;
//     }
//     NSData *tiff = [img TIFFRepresentation];
//     if (tiff == nil) {
//         return NULL;
//     }
//     NSBitmapImageRep *rep = [NSBitmapImageRep imageRepWithData:tiff];
//     NSData *png = [rep representationUsingType:NSBitmapImageFileTypePNG properties:@{}];
//     if (png == nil || png.length == 0) {
//         return NULL;
//     }
//     void *buf = malloc(png.length);
//     memcpy(buf, png.bytes, png.length);
//     *len = (int)png.length;
//     return buf;
// }
//
// void *keepsake_app_icon(const char *bundleID, int *len) {
//     void *out = NULL;
//     *len = 0;
//     @autoreleasepool {
//         NSWorkspace *ws = [NSWorkspace sharedWorkspace];
//         NSURL *url = [ws URLForApplicationWithBundleIdentifier:
//                        [NSString stringWithUTF8String:bundleID]];
//         if (url == nil) {
//             return NULL;
//         }
//         NSImage *icon = [ws iconForFile:url.path];
//         out = keepsake_png_from_nsimage(icon, len);
//     }
//     return out;
// }
//
// void *keepsake_file_icon(const char *path, int *len) {
//     void *out = NULL;
//     *len = 0;
//     @autoreleasepool {
//         NSImage *icon = [[NSWorkspace sharedWorkspace]
//                           iconForFile:[NSString stringWithUTF8String:path]];
//         out = keepsake_png_from_nsimage(icon, len);
//     }
//     return out;
// }
//
// // QuickLook document preview rendered to PNG, or NULL if QuickLook cannot
// // produce one for this file type.
// void *keepsake_ql_preview(const char *path, int maxPx, int *len) {
//     void *out = NULL;
//     *len = 0;
//     @autoreleasepool {
//         NSURL *url = [NSURL fileURLWithPath:[NSString stringWithUTF8String:path]];
//         CGSize size = CGSizeMake(maxPx, maxPx);
//         CGImageRef img = QLThumbnailImageCreate(kCFAllocatorDefault,
//             (__bridge CFURLRef)url, size, NULL);
//         if (img == NULL) {
//             return NULL;
//         }
//         CFMutableDataRef data = CFDataCreateMutable(kCFAllocatorDefault, 0);
//         CGImageDestinationRef dest = CGImageDestinationCreateWithData(data,
//             CFSTR("public.png"), 1, NULL);
//         if (dest != NULL) {
//             CGImageDestinationAddImage(dest, img, NULL);
//             if (CGImageDestinationFinalize(dest) && CFDataGetLength(data) > 0) {
//                 *len = (int)CFDataGetLength(data);
//                 out = malloc(*len);
//                 memcpy(out, CFDataGetBytePtr(data), *len);
//             }
//             CFRelease(dest);
//         }
//         CFRelease(data);
//         CGImageRelease(img);
//     }
//     return out;
// }
import "C"

import (
	"errors"
	"log/slog"
	"strings"
	"time"
	"unsafe"

	"golang.design/x/clipboard"
)

const darwinPollInterval = 100 * time.Millisecond

type darwinBackend struct {
	lastChange C.NSInteger
	watchCh    chan struct{}
	done       chan struct{}
}

// New returns the macOS clipboard backend.
// clipboard.Init is called here rather than in init() so that CLI sub-commands
// that never construct a Backend don't log spurious warnings.
func New() Backend {
	if err := clipboard.Init(); err != nil {
		slog.Warn("clipboard init failed", "err", err)
	}
	b := &darwinBackend{
		lastChange: C.keepsake_change_count(),
		watchCh:    make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
	go b.poll()
	return b
}

func (b *darwinBackend) Name() string { return "macOS NSPasteboard" }

func (b *darwinBackend) poll() {
	t := time.NewTicker(darwinPollInterval)
	defer t.Stop()
	for {
		select {
		case <-b.done:
			return
		case <-t.C:
			cc := C.keepsake_change_count()
			if cc != b.lastChange {
				b.lastChange = cc
				select {
				case b.watchCh <- struct{}{}:
				default:
				}
			}
		}
	}
}

func (b *darwinBackend) DetectFormat() Format {
	return Format(C.keepsake_formats())
}

func (b *darwinBackend) ReadContent(f Format) (RawContent, error) {
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

	case FormatFiles:
		joined := C.keepsake_read_files()
		if joined == nil {
			return RawContent{}, errors.New("file list gone")
		}
		defer C.free(unsafe.Pointer(joined))
		paths := strings.Split(C.GoString(joined), "\n")
		return RawContent{Format: FormatFiles, Paths: paths}, nil

	default:
		return RawContent{}, errors.New("unsupported format: " + f.String())
	}
}

func (b *darwinBackend) Write(rc RawContent) error {
	switch rc.Format {
	case FormatText:
		clipboard.Write(clipboard.FmtText, rc.Data)
	case FormatImage:
		clipboard.Write(clipboard.FmtImage, rc.Data)
	case FormatFiles:
		joined := C.CString(strings.Join(rc.Paths, "\n"))
		defer C.free(unsafe.Pointer(joined))
		if C.keepsake_write_files(joined) == 0 {
			return errors.New("pasteboard rejected file URLs")
		}
	default:
		return errors.New("cannot write format: " + rc.Format.String())
	}
	return nil
}

func (b *darwinBackend) FrontmostApp() (AppIdentity, bool) {
	var cname, cbundle *C.char
	C.keepsake_frontmost_app(&cname, &cbundle)
	if cname == nil && cbundle == nil {
		return AppIdentity{}, false
	}
	var id AppIdentity
	if cname != nil {
		id.Name = C.GoString(cname)
		C.free(unsafe.Pointer(cname))
	}
	if cbundle != nil {
		id.BundleID = C.GoString(cbundle)
		C.free(unsafe.Pointer(cbundle))
	}
	return id, true
}

func (b *darwinBackend) AppIcon(id AppIdentity) ([]byte, bool) {
	if id.BundleID == "" {
		return nil, false
	}
	cid := C.CString(id.BundleID)
	defer C.free(unsafe.Pointer(cid))
	var n C.int
	buf := C.keepsake_app_icon(cid, &n)
	if buf == nil {
		return nil, false
	}
	defer C.free(buf)
	return C.GoBytes(buf, n), true
}

// PreviewFile renders a QuickLook document preview as PNG bytes.
// Satisfies the thumbnail generator's preview service.
func (b *darwinBackend) PreviewFile(path string, maxPx int) ([]byte, bool) {
	cpath := C.CString(path)
	defer C.free(unsafe.Pointer(cpath))
	var n C.int
	buf := C.keepsake_ql_preview(cpath, C.int(maxPx), &n)
	if buf == nil {
		return nil, false
	}
	defer C.free(buf)
	return C.GoBytes(buf, n), true
}

// FileIcon returns the generic Finder icon for path as PNG bytes.
func (b *darwinBackend) FileIcon(path string) ([]byte, bool) {
	cpath := C.CString(path)
	defer C.free(unsafe.Pointer(cpath))
	var n C.int
	buf := C.keepsake_file_icon(cpath, &n)
	if buf == nil {
		return nil, false
	}
	defer C.free(buf)
	return C.GoBytes(buf, n), true
}

func (b *darwinBackend) Watch() <-chan struct{} { return b.watchCh }
func (b *darwinBackend) Close()                 { close(b.done) }
