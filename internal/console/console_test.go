package console

import (
	"bytes"
	"errors"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"

	"github.com/fulmenhq/convoy/internal/delta"
)

func plain(t *testing.T) {
	t.Helper()
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })
}

func TestMarkers(t *testing.T) {
	plain(t)
	var buf bytes.Buffer
	c := New(&buf)

	c.Heading("Deploy profile %q", "web")
	c.Skipped("Build frontend")
	c.Confirmed("Profile %q successfully deployed", "web")
	c.Note("Peer profiles that will also deploy: %s", "api")
	c.Failure(errors.New("boom"))

	assert.Equal(t, `● Deploy profile "web"
✘ Build frontend (skipped)
✔ Profile "web" successfully deployed
- Peer profiles that will also deploy: api
DEPLOY ERROR: boom
`, buf.String())
}

func TestDeltaReport(t *testing.T) {
	plain(t)
	var buf bytes.Buffer
	New(&buf).DeltaReport(map[delta.Domain]delta.Status{
		delta.Dependencies: delta.Unchanged,
		delta.Frontend:     delta.Changed,
		delta.Backend:      delta.Unchanged,
	})

	assert.Equal(t, `● Post-update deltas:
   * Packages - no changes
   * Frontend - has updated, needs rebuild
   * Backend  - no changes
`, buf.String())
}

func TestDeltaReportNothingChanged(t *testing.T) {
	plain(t)
	var buf bytes.Buffer
	New(&buf).DeltaReport(map[delta.Domain]delta.Status{delta.Backend: delta.Unchanged})

	assert.Contains(t, buf.String(), "   * Backend  - no changes\n")
	assert.NotContains(t, buf.String(), "Packages")
	assert.Contains(t, buf.String(), "- Nothing to do here - use --force if this is wrong\n")
}

func TestTableAlignsWideRunes(t *testing.T) {
	var buf bytes.Buffer
	Table(&buf, [][]string{
		{"ID", "TITLE", "SORT"},
		{"web", "Web", "10"},
		{"jp", "日本", "5"},
	})
	assert.Equal(t, "ID   TITLE  SORT\nweb  Web    10\njp   日本   5\n", buf.String())
}
