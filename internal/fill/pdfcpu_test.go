package fill

import (
	"strings"
	"testing"
)

func TestOverlayDescriptorFlipsYAxis(t *testing.T) {
	// A letter page is 792pt tall; an overlay 50pt from the top must land
	// 742pt from the bottom in watermark offset space.
	desc := overlayDescriptor(792, overlayOp{x: 100, y: 50, value: "wages"})
	if !strings.Contains(desc, "off:100.0 742.0") {
		t.Errorf("descriptor = %q, want offset 100.0 742.0", desc)
	}
}

func TestOverlayDescriptorTopLeftCorner(t *testing.T) {
	desc := overlayDescriptor(792, overlayOp{x: 0, y: 0})
	if !strings.Contains(desc, "off:0.0 792.0") {
		t.Errorf("descriptor = %q, want offset 0.0 792.0", desc)
	}
}
