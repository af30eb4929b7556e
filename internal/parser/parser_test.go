package parser

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guarded-rag/internal/config"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDocuments_MarkdownOnlyByDefault(t *testing.T) {
	dir := t.TempDir()
	b := writeFile(t, dir, "b.md", "# Bravo\n\nsecond")
	a := writeFile(t, dir, "a.md", "alpha")
	writeFile(t, dir, "notes.txt", "ignored")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "dir.md"), 0o755))

	docs, err := LoadDocuments(dir, config.LoaderConfig{Patterns: []string{"*.md"}})
	require.NoError(t, err)

	require.Len(t, docs, 2)
	assert.Equal(t, a, docs[0].Source)
	assert.Equal(t, "alpha", docs[0].Content)
	assert.Equal(t, b, docs[1].Source)
	assert.Equal(t, "# Bravo\n\nsecond", docs[1].Content)
}

func TestLoadDocuments_MultiplePatternsDeduplicated(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.md", "alpha")
	writeFile(t, dir, "b.txt", "bravo")

	docs, err := LoadDocuments(dir, config.LoaderConfig{Patterns: []string{"*.md", "*", "*.txt"}})
	require.NoError(t, err)

	require.Len(t, docs, 2)
	assert.Equal(t, "alpha", docs[0].Content)
	assert.Equal(t, "bravo", docs[1].Content)
}

func TestLoadDocuments_EmptyDirectory(t *testing.T) {
	docs, err := LoadDocuments(t.TempDir(), config.LoaderConfig{Patterns: []string{"*.md"}})
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestLoadDocuments_MissingDirectory(t *testing.T) {
	_, err := LoadDocuments(filepath.Join(t.TempDir(), "data"), config.LoaderConfig{Patterns: []string{"*.md"}})
	assert.ErrorIs(t, err, ErrDataDirNotFound)
}

func TestCheckDataDir_File(t *testing.T) {
	path := writeFile(t, t.TempDir(), "data", "not a dir")
	assert.ErrorIs(t, CheckDataDir(path), ErrDataDirNotFound)
}

func TestLoadDocuments_StripMarkdown(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "doc.md", "# Title\n\nSome *emphasis* and `code`.\n\n- one\n- two\n")

	docs, err := LoadDocuments(dir, config.LoaderConfig{Patterns: []string{"*.md"}, StripMarkdown: true})
	require.NoError(t, err)
	require.Len(t, docs, 1)

	assert.Equal(t, "Title\nSome emphasis and code.\none\ntwo\n", docs[0].Content)
}

func TestMarkdownToText_CodeBlock(t *testing.T) {
	got := MarkdownToText([]byte("intro\n\n```go\nfmt.Println(1)\n```\n"))
	assert.Equal(t, "intro\nfmt.Println(1)\n", got)
}

func TestDocxText(t *testing.T) {
	xml := `<w:document><w:body>` +
		`<w:p><w:r><w:t>Hello</w:t></w:r><w:r><w:t xml:space="preserve"> world &amp; co</w:t></w:r></w:p>` +
		`<w:p></w:p>` +
		`<w:p><w:r><w:t>Second</w:t></w:r></w:p>` +
		`</w:body></w:document>`

	assert.Equal(t, "Hello world & co\nSecond\n", docxText(xml))
}

func writeZip(t *testing.T, path string, files map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
}

func slideXML(paragraphs ...string) string {
	xml := `<p:sld><p:cSld><p:spTree><p:sp><p:txBody>`
	for _, p := range paragraphs {
		xml += `<a:p><a:r><a:rPr lang="en-US"/><a:t>` + p + `</a:t></a:r></a:p>`
	}
	return xml + `</p:txBody></p:sp></p:spTree></p:cSld></p:sld>`
}

func TestLoadDocuments_PPTX(t *testing.T) {
	dir := t.TempDir()
	writeZip(t, filepath.Join(dir, "deck.pptx"), map[string]string{
		"ppt/slides/slide10.xml":            slideXML("Ten"),
		"ppt/slides/slide2.xml":             slideXML("Two", "Q&amp;A"),
		"ppt/slides/slide1.xml":             slideXML("One"),
		"ppt/slides/_rels/slide1.xml.rels":  `<Relationships/>`,
		"ppt/slideLayouts/slideLayout1.xml": slideXML("Layout"),
	})

	docs, err := LoadDocuments(dir, config.LoaderConfig{Patterns: []string{"*.pptx"}})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "One\nTwo\nQ&A\nTen\n", docs[0].Content)
}

func TestLoadDocuments_ODS(t *testing.T) {
	content := `<office:document-content><office:body><office:spreadsheet>` +
		`<table:table table:name="Budget" table:style-name="ta1">` +
		`<table:table-column table:number-columns-repeated="3"/>` +
		`<table:table-row><table:table-cell office:value-type="string"><text:p>Item</text:p></table:table-cell>` +
		`<table:table-cell office:value-type="string"><text:p>Cost</text:p></table:table-cell></table:table-row>` +
		`<table:table-row><table:table-cell office:value-type="string"><text:p>Tea <text:span>&amp; cake</text:span></text:p></table:table-cell>` +
		`<table:table-cell/><table:table-cell office:value-type="float" office:value="4"><text:p>4</text:p></table:table-cell></table:table-row>` +
		`<table:table-row table:number-rows-repeated="100"><table:table-cell table:number-columns-repeated="3"/></table:table-row>` +
		`</table:table>` +
		`<table:table table:name="Empty"></table:table>` +
		`</office:spreadsheet></office:body></office:document-content>`

	dir := t.TempDir()
	writeZip(t, filepath.Join(dir, "sheet.ods"), map[string]string{
		"mimetype":    "application/vnd.oasis.opendocument.spreadsheet",
		"content.xml": content,
	})

	docs, err := LoadDocuments(dir, config.LoaderConfig{Patterns: []string{"*.ods"}})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "## Sheet: Budget\nItem\tCost\nTea & cake\t\t4\n## Sheet: Empty\n", docs[0].Content)
}

func TestLoadDocuments_ODSWithoutContent(t *testing.T) {
	dir := t.TempDir()
	writeZip(t, filepath.Join(dir, "broken.ods"), map[string]string{"mimetype": "x"})

	_, err := LoadDocuments(dir, config.LoaderConfig{Patterns: []string{"*.ods"}})
	assert.Error(t, err)
}
