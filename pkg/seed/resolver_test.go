package seed

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"

	"webharvest/pkg/utils"
)

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func writeSeedFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seeds.txt")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestResolveLiteralURI(t *testing.T) {
	set, err := Resolve("https://example.com/docs/", testLogger())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if set.Origin.String() != "https://example.com/docs/" {
		t.Errorf("origin = %s", set.Origin)
	}
	if set.Host != "example.com" {
		t.Errorf("host = %q", set.Host)
	}
	if len(set.Aux) != 0 {
		t.Errorf("aux = %v", set.Aux)
	}
}

func TestResolveSeedList(t *testing.T) {
	path := writeSeedFile(t, `# origin first
https://example.com/

https://example.com/sitemap.xml
not a url at all
https://elsewhere.net/off-host
`)
	set, err := Resolve(path, testLogger())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if set.Origin.String() != "https://example.com/" {
		t.Errorf("origin = %s", set.Origin)
	}
	if set.Host != "example.com" {
		t.Errorf("host = %q", set.Host)
	}
	// The off-host entry is kept; exclusion happens downstream. The junk
	// line is dropped.
	if len(set.Aux) != 2 {
		t.Fatalf("aux = %v", set.Aux)
	}
	if set.Aux[0].String() != "https://example.com/sitemap.xml" {
		t.Errorf("aux[0] = %s", set.Aux[0])
	}
	if set.Aux[1].Hostname() != "elsewhere.net" {
		t.Errorf("aux[1] = %s", set.Aux[1])
	}

	all := set.All()
	if len(all) != 3 || all[0] != set.Origin {
		t.Errorf("All() = %v", all)
	}
}

func TestResolveErrors(t *testing.T) {
	tests := []struct {
		name string
		spec string
	}{
		{"empty spec", "   "},
		{"nonexistent file", filepath.Join(os.TempDir(), "definitely-missing-seeds.txt")},
		{"ftp scheme", "ftp://example.com/file"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Resolve(tc.spec, testLogger())
			if !errors.Is(err, utils.ErrInvalidSeed) {
				t.Errorf("err = %v, want ErrInvalidSeed", err)
			}
		})
	}
}

func TestResolveListWithBadOrigin(t *testing.T) {
	path := writeSeedFile(t, "::not-a-uri\nhttps://example.com/\n")
	_, err := Resolve(path, testLogger())
	if !errors.Is(err, utils.ErrInvalidSeed) {
		t.Errorf("err = %v, want ErrInvalidSeed", err)
	}
}

func TestResolveListAllComments(t *testing.T) {
	path := writeSeedFile(t, "# just\n# comments\n\n")
	_, err := Resolve(path, testLogger())
	if !errors.Is(err, utils.ErrInvalidSeed) {
		t.Errorf("err = %v, want ErrInvalidSeed", err)
	}
}
