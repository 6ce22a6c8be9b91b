package programs

import (
	"testing"

	"tada-core/internal/models"
)

func TestCatalogIndexes(t *testing.T) {
	for _, p := range Catalog {
		got, ok := ByID(p.ID)
		if !ok || got.Address != p.Address {
			t.Errorf("ByID(%s) = %+v, %v", p.ID, got, ok)
		}
		got, ok = ByAddress(p.Address)
		if !ok || got.ID != p.ID {
			t.Errorf("ByAddress(%s) = %+v, %v", p.Address, got, ok)
		}
	}
	if _, ok := ByID("unknown"); ok {
		t.Error("unknown id should miss")
	}
}

func TestAttributeSource(t *testing.T) {
	jup := "JUP6LkbZbjS1jKKwapdHNy74zcZ3tLUZoi5QNyVTaV4"
	ray := "routeUGWgWzqBWFcrCfv8tritsqukccJPu3q5GPP3xS"

	src := AttributeSource([]string{"someSigner", jup, "other"})
	if src.Type != models.SourceJupiter || src.OuterProgram != jup {
		t.Errorf("jupiter attribution wrong: %+v", src)
	}

	src = AttributeSource([]string{ray})
	if src.Type != models.SourceRaydium {
		t.Errorf("raydium attribution wrong: %+v", src)
	}

	// First aggregator in account-key order wins.
	src = AttributeSource([]string{ray, jup})
	if src.Type != models.SourceRaydium {
		t.Errorf("first match should win, got %+v", src)
	}

	src = AttributeSource([]string{"a", "b"})
	if src.Type != models.SourceDirect || src.OuterProgram != "" {
		t.Errorf("direct attribution wrong: %+v", src)
	}
}
