package checkpoint

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"shapeexport/internal/models"
)

func TestStoreRoundtrip(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	saved := &models.ExportCheckpoint{
		ShapeName:         "luna",
		LastCompletedPage: 7,
		RecordsSoFar: []models.MemoryRecord{
			{Type: models.MemoryTypeAutomatic, Content: "likes stargazing", Date: "3/1/2025"},
			{Type: models.MemoryTypeManual, Content: "allergic to peanuts"},
		},
	}
	if err := store.Save(saved); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := store.Load("luna")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !reflect.DeepEqual(loaded, saved) {
		t.Errorf("Load = %+v, want %+v", loaded, saved)
	}
}

func TestStoreLoadMissing(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	checkpoint, err := store.Load("never-saved")
	if err != nil {
		t.Fatalf("Load of a missing checkpoint errored: %v", err)
	}
	if checkpoint != nil {
		t.Errorf("Load of a missing checkpoint = %+v, want nil", checkpoint)
	}
}

func TestStoreLoadCorrupt(t *testing.T) {
	testCases := []struct {
		name string
		body string
	}{
		{"truncated json", `{"shapeName": "luna", "lastComp`},
		{"not json at all", "<html>oops</html>"},
		{"page below one", `{"shapeName": "luna", "lastCompletedPage": 0, "recordsSoFar": []}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			store, err := NewStore(dir)
			if err != nil {
				t.Fatalf("NewStore failed: %v", err)
			}
			path := filepath.Join(dir, "luna.checkpoint.json")
			if err := os.WriteFile(path, []byte(tc.body), 0o600); err != nil {
				t.Fatalf("fixture write failed: %v", err)
			}

			if _, err := store.Load("luna"); !errors.Is(err, ErrCorrupt) {
				t.Errorf("Load = %v, want ErrCorrupt", err)
			}
		})
	}
}

func TestStoreSaveOverwrites(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	for page := 1; page <= 3; page++ {
		err := store.Save(&models.ExportCheckpoint{
			ShapeName:         "luna",
			LastCompletedPage: page,
		})
		if err != nil {
			t.Fatalf("Save at page %d failed: %v", page, err)
		}
	}

	loaded, err := store.Load("luna")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.LastCompletedPage != 3 {
		t.Errorf("lastCompletedPage = %d, want the latest save (3)", loaded.LastCompletedPage)
	}
}

func TestStoreDeleteIdempotent(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	if err := store.Save(&models.ExportCheckpoint{ShapeName: "luna", LastCompletedPage: 1}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := store.Delete("luna"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if checkpoint, err := store.Load("luna"); err != nil || checkpoint != nil {
		t.Errorf("checkpoint survived delete: %+v, %v", checkpoint, err)
	}
	if err := store.Delete("luna"); err != nil {
		t.Errorf("second Delete errored: %v", err)
	}
}

func TestSafeName(t *testing.T) {
	testCases := []struct {
		in   string
		want string
	}{
		{"luna", "luna"},
		{"Luna Bot", "Luna_Bot"},
		{"shape/with:odd*chars?", "shape_with_odd_chars"},
		{"../../etc/passwd", "etc_passwd"},
		{"日本語", "shape"},
		{"", "shape"},
	}

	for _, tc := range testCases {
		if got := SafeName(tc.in); got != tc.want {
			t.Errorf("SafeName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
