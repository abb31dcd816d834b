package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/paper-harvester/internal/harvest"
)

// buildPDF writes a minimal uncompressed PDF with one line of text per page.
func buildPDF(pages ...string) []byte {
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"", // page tree, filled below
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>",
	}
	kids := make([]string, 0, len(pages))
	for _, text := range pages {
		pageNum := len(objects) + 1
		content := fmt.Sprintf("BT /F1 12 Tf 72 712 Td (%s) Tj ET", text)
		objects = append(objects,
			fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents %d 0 R /Resources << /Font << /F1 3 0 R >> >> >>", pageNum+1),
			fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
		)
		kids = append(kids, fmt.Sprintf("%d 0 R", pageNum))
	}
	objects[1] = fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages))

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestExtractReadsLeadingPages(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "paper.pdf", buildPDF("Alpha", "Bravo", "Charlie", "Delta"))
	text, err := New(3).Extract(context.Background(), path)
	require.NoError(t, err)
	assert.Contains(t, text, "Alpha")
	assert.Contains(t, text, "Charlie")
	assert.NotContains(t, text, "Delta")
}

func TestExtractMissingFile(t *testing.T) {
	t.Parallel()

	_, err := New(3).Extract(context.Background(), filepath.Join(t.TempDir(), "absent.pdf"))
	require.True(t, errors.Is(err, harvest.ErrIntegrity))

	_, err = New(3).Extract(context.Background(), "")
	require.True(t, errors.Is(err, harvest.ErrIntegrity))
}

func TestExtractEmptyFile(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "empty.pdf", nil)
	_, err := New(3).Extract(context.Background(), path)
	require.True(t, errors.Is(err, harvest.ErrIntegrity))
}

func TestExtractRejectsNonPDF(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "page.pdf", []byte("<html>not a pdf</html>"))
	_, err := New(3).Extract(context.Background(), path)
	require.Error(t, err)
	assert.False(t, errors.Is(err, harvest.ErrIntegrity))
}

func TestCheckArtifactRejectsDirectory(t *testing.T) {
	t.Parallel()

	require.True(t, errors.Is(CheckArtifact(t.TempDir()), harvest.ErrIntegrity))
}
