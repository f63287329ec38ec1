package loader

import (
	"fmt"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketrag/internal/domain"
)

func TestParseManifest(t *testing.T) {
	sources, err := ParseManifest(strings.NewReader("docs/summary.md\n\n# generated tables\n  vendors_master.csv  \n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"docs/summary.md", "vendors_master.csv"}, sources)
}

func TestLoader(t *testing.T) {
	var table strings.Builder
	table.WriteString("vendor_id,vendor_tier\n")
	for i := 0; i < 250; i++ {
		fmt.Fprintf(&table, "V%03d,Gold\n", i)
	}
	fsys := fstest.MapFS{
		"rag/data_sources.txt":      {Data: []byte("AI_management_summary.txt\nvendors_master.csv\nmissing.md\n../outside.txt\n")},
		"AI_management_summary.txt": {Data: []byte("Vendors in GCC outperform.\n")},
		"vendors_master.csv":        {Data: []byte(table.String())},
		"notes/windows.md":          {Data: []byte("# KPIs\r\nReturn rate rose.\r\n")},
		"tiers.csv":                 {Data: []byte("tier,share\r\nGold,0.4\r\n")},
	}
	l := New(fsys, 200)

	t.Run("Missing and escaping sources are skipped", func(t *testing.T) {
		res, err := l.LoadManifest("rag/data_sources.txt")
		require.NoError(t, err)
		require.Len(t, res.Documents, 2)
		require.Len(t, res.Skipped, 2)
		assert.Equal(t, "missing.md", res.Skipped[0].Source)
		assert.ErrorIs(t, res.Skipped[0].Err, domain.ErrIngestion)
		assert.Equal(t, "../outside.txt", res.Skipped[1].Source)
		assert.ErrorIs(t, res.Skipped[1].Err, domain.ErrIngestion)
	})

	t.Run("Text is read verbatim", func(t *testing.T) {
		doc, err := l.Read("./AI_management_summary.txt")
		require.NoError(t, err)
		assert.Equal(t, "Vendors in GCC outperform.\n", doc.Content)
		assert.Equal(t, "./AI_management_summary.txt", doc.Source)
	})

	t.Run("Tables keep the header and the first rows", func(t *testing.T) {
		doc, err := l.Read("vendors_master.csv")
		require.NoError(t, err)
		lines := strings.Split(strings.TrimSuffix(doc.Content, "\n"), "\n")
		require.Len(t, lines, 201)
		assert.Equal(t, "vendor_id,vendor_tier", lines[0])
		assert.Equal(t, "V199,Gold", lines[200])
	})

	t.Run("CRLF line endings are folded", func(t *testing.T) {
		doc, err := l.Read("notes/windows.md")
		require.NoError(t, err)
		assert.Equal(t, "# KPIs\nReturn rate rose.\n", doc.Content)

		doc, err = l.Read("tiers.csv")
		require.NoError(t, err)
		assert.Equal(t, "tier,share\nGold,0.4\n", doc.Content)
	})

	t.Run("Missing manifest is an error", func(t *testing.T) {
		_, err := l.LoadManifest("rag/none.txt")
		assert.Error(t, err)
	})
}
