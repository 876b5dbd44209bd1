package message

import (
	"strings"
	"testing"
	"time"

	"go.klb.dev/keepsake/internal/classify"
	"go.klb.dev/keepsake/internal/ledger"
)

func TestNewEntryListingOmitsPayload(t *testing.T) {
	e := &ledger.Entry{
		ID:            "e1",
		Kind:          classify.KindText,
		Text:          strings.Repeat("x", 500),
		Thumbnail:     []byte{1, 2},
		SourceApp:     "Editor",
		SourceAppIcon: []byte{3, 4},
		CreatedAt:     time.Now(),
		Favorite:      true,
	}

	listing := NewEntry(e, false)
	if listing.Text != "" {
		t.Fatal("listing must omit the full text payload")
	}
	if listing.SourceAppIcon != "" {
		t.Fatal("listing must omit the source app icon")
	}
	if listing.Preview == "" || len(listing.Preview) > 90 {
		t.Fatalf("preview = %q", listing.Preview)
	}
	if listing.Thumbnail == "" {
		t.Fatal("listing keeps the thumbnail")
	}
	if !listing.Favorite || listing.SourceApp != "Editor" {
		t.Fatalf("listing = %+v", listing)
	}

	full := NewEntry(e, true)
	if full.Text != e.Text {
		t.Fatal("full entry carries the text payload")
	}
	if full.SourceAppIcon == "" {
		t.Fatal("full entry carries the icon")
	}
}

func TestEntryThumbnailRoundTrip(t *testing.T) {
	e := &ledger.Entry{ID: "e1", Kind: classify.KindImage, ImageRef: "e1.png", Thumbnail: []byte{9, 8, 7}}
	we := NewEntry(e, false)

	raw, err := we.DecodeThumbnail()
	if err != nil {
		t.Fatalf("DecodeThumbnail: %v", err)
	}
	if len(raw) != 3 || raw[0] != 9 {
		t.Fatalf("thumbnail = %v", raw)
	}

	empty := NewEntry(&ledger.Entry{ID: "e2", Kind: classify.KindText}, false)
	raw, err = empty.DecodeThumbnail()
	if err != nil || raw != nil {
		t.Fatalf("absent thumbnail = (%v, %v), want (nil, nil)", raw, err)
	}
}

func TestEncodeDecode(t *testing.T) {
	m := &Message{
		Type:   TypePinboard,
		Action: PinboardAssign,
		ID:     "e1",
		Name:   "work",
	}
	raw, err := m.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Type != TypePinboard || got.Action != PinboardAssign || got.ID != "e1" || got.Name != "work" {
		t.Fatalf("round trip = %+v", got)
	}

	if _, err := Decode([]byte("{broken")); err == nil {
		t.Fatal("Decode should fail on malformed JSON")
	}
}

func TestHelpers(t *testing.T) {
	r := Result()
	if r.Type != TypeResult || !r.OK {
		t.Fatalf("Result = %+v", r)
	}

	e := Errorf("no entry %q", "e9")
	if e.Type != TypeError || e.Error != `no entry "e9"` {
		t.Fatalf("Errorf = %+v", e)
	}
}
