package parser

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"

	"guarded-rag/internal/config"
	"guarded-rag/internal/models"
)

var ErrDataDirNotFound = errors.New("data directory not found")

var (
	docxParagraphRe = regexp.MustCompile(`</w:p>`)
	docxTextRe      = regexp.MustCompile(`<w:t(?:\s[^>]*)?>([^<]*)</w:t>`)
	xmlEntities     = strings.NewReplacer("&amp;", "&", "&lt;", "<", "&gt;", ">", "&quot;", `"`, "&apos;", "'")

	pptxSlideRe     = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)
	pptxParagraphRe = regexp.MustCompile(`</a:p>`)
	pptxTextRe      = regexp.MustCompile(`<a:t(?:\s[^>]*)?>([^<]*)</a:t>`)

	odsTableRe = regexp.MustCompile(`(?s)<table:table\s[^>]*table:name="([^"]*)"[^>]*>(.*?)</table:table>`)
	odsRowRe   = regexp.MustCompile(`(?s)<table:table-row\b[^>]*>(.*?)</table:table-row>`)
	odsCellRe  = regexp.MustCompile(`(?s)<table:table-cell\b[^>]*?(?:/>|>(.*?)</table:table-cell>)`)
	odsTextRe  = regexp.MustCompile(`(?s)<text:p\b[^>]*>(.*?)</text:p>`)
	xmlTagRe   = regexp.MustCompile(`<[^>]+>`)
)

// CheckDataDir fails with ErrDataDirNotFound unless dir is an existing directory.
func CheckDataDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrDataDirNotFound, dir)
		}
		return fmt.Errorf("failed to stat data directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrDataDirNotFound, dir)
	}
	return nil
}

// LoadDocuments reads every file in dir matching one of the loader patterns.
// Files are returned in lexical order, each read fully into memory.
func LoadDocuments(dir string, cfg config.LoaderConfig) ([]models.Document, error) {
	if err := CheckDataDir(dir); err != nil {
		return nil, err
	}

	paths, err := matchFiles(dir, cfg.Patterns)
	if err != nil {
		return nil, err
	}

	docs := make([]models.Document, 0, len(paths))
	for _, path := range paths {
		content, err := readFile(path, cfg.StripMarkdown)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		log.Debug().Str("file", path).Int("chars", len(content)).Msg("Read document")
		docs = append(docs, models.Document{Source: path, Content: content})
	}
	return docs, nil
}

func matchFiles(dir string, patterns []string) ([]string, error) {
	seen := make(map[string]bool)
	var paths []string
	for _, pattern := range patterns {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
		}
		for _, m := range matches {
			if seen[m] {
				continue
			}
			if info, err := os.Stat(m); err != nil || info.IsDir() {
				continue
			}
			seen[m] = true
			paths = append(paths, m)
		}
	}
	sort.Strings(paths)
	return paths, nil
}

func readFile(path string, stripMarkdown bool) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return parsePDF(path)
	case ".docx":
		return parseDOCX(path)
	case ".xlsx":
		return parseXLSX(path)
	case ".pptx":
		return parsePPTX(path)
	case ".ods":
		return parseODS(path)
	case ".md", ".markdown":
		data, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		if stripMarkdown {
			return MarkdownToText(data), nil
		}
		return string(data), nil
	default:
		data, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
}

func parsePDF(filePath string) (string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return "", err
	}

	reader, err := pdf.NewReader(f, stat.Size())
	if err != nil {
		return "", err
	}

	var buf strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", i, err)
		}
		buf.WriteString(pageText)
		buf.WriteString("\n")
	}
	return buf.String(), nil
}

func parseDOCX(filePath string) (string, error) {
	r, err := docx.ReadDocxFile(filePath)
	if err != nil {
		return "", err
	}
	defer r.Close()

	return docxText(r.Editable().GetContent()), nil
}

// docxText flattens word/document.xml into one line per paragraph.
func docxText(xmlContent string) string {
	return paragraphText(xmlContent, docxParagraphRe, docxTextRe)
}

// paragraphText splits xmlContent at paragraph ends and joins the text runs
// of each paragraph into one line. Empty paragraphs are dropped.
func paragraphText(xmlContent string, paragraphRe, runRe *regexp.Regexp) string {
	var out strings.Builder
	for _, para := range paragraphRe.Split(xmlContent, -1) {
		var line strings.Builder
		for _, m := range runRe.FindAllStringSubmatch(para, -1) {
			line.WriteString(m[1])
		}
		if line.Len() == 0 {
			continue
		}
		out.WriteString(xmlEntities.Replace(line.String()))
		out.WriteString("\n")
	}
	return out.String()
}

// parsePPTX reads the slides of a presentation in slide number order, one
// line per text paragraph.
func parsePPTX(filePath string) (string, error) {
	f, err := zip.OpenReader(filePath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	type slide struct {
		number int
		file   *zip.File
	}
	var slides []slide
	for _, file := range f.File {
		m := pptxSlideRe.FindStringSubmatch(file.Name)
		if m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		slides = append(slides, slide{number: n, file: file})
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].number < slides[j].number })

	var buf strings.Builder
	for _, s := range slides {
		data, err := readZipFile(s.file)
		if err != nil {
			return "", fmt.Errorf("slide %d: %w", s.number, err)
		}
		buf.WriteString(paragraphText(string(data), pptxParagraphRe, pptxTextRe))
	}
	return buf.String(), nil
}

// parseODS reads content.xml of an OpenDocument spreadsheet into the same
// layout as parseXLSX.
func parseODS(filePath string) (string, error) {
	f, err := zip.OpenReader(filePath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var content []byte
	for _, file := range f.File {
		if file.Name == "content.xml" {
			if content, err = readZipFile(file); err != nil {
				return "", err
			}
			break
		}
	}
	if content == nil {
		return "", errors.New("content.xml not found")
	}
	return odsText(string(content)), nil
}

func odsText(xmlContent string) string {
	var buf strings.Builder
	for _, table := range odsTableRe.FindAllStringSubmatch(xmlContent, -1) {
		buf.WriteString(fmt.Sprintf("## Sheet: %s\n", xmlEntities.Replace(table[1])))
		for _, row := range odsRowRe.FindAllStringSubmatch(table[2], -1) {
			var cells []string
			for _, cell := range odsCellRe.FindAllStringSubmatch(row[1], -1) {
				var paras []string
				for _, p := range odsTextRe.FindAllStringSubmatch(cell[1], -1) {
					paras = append(paras, xmlEntities.Replace(xmlTagRe.ReplaceAllString(p[1], "")))
				}
				cells = append(cells, strings.Join(paras, " "))
			}
			for len(cells) > 0 && cells[len(cells)-1] == "" {
				cells = cells[:len(cells)-1]
			}
			if len(cells) == 0 {
				continue
			}
			buf.WriteString(strings.Join(cells, "\t"))
			buf.WriteString("\n")
		}
	}
	return buf.String()
}

func readZipFile(file *zip.File) ([]byte, error) {
	rc, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func parseXLSX(filePath string) (string, error) {
	f, err := excelize.OpenFile(filePath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var buf strings.Builder
	for _, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			return "", fmt.Errorf("sheet %s: %w", sheetName, err)
		}
		buf.WriteString(fmt.Sprintf("## Sheet: %s\n", sheetName))
		for _, row := range rows {
			buf.WriteString(strings.Join(row, "\t"))
			buf.WriteString("\n")
		}
	}
	return buf.String(), nil
}

// MarkdownToText renders markdown source to plain text, one line per block.
func MarkdownToText(source []byte) string {
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	doc := md.Parser().Parse(text.NewReader(source))

	var buf bytes.Buffer
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if n.Type() == ast.TypeBlock && n.Kind() != ast.KindDocument && buf.Len() > 0 && !bytes.HasSuffix(buf.Bytes(), []byte("\n")) {
				buf.WriteByte('\n')
			}
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Text:
			buf.Write(node.Segment.Value(source))
			if node.SoftLineBreak() || node.HardLineBreak() {
				buf.WriteByte('\n')
			}
		case *ast.String:
			buf.Write(node.Value)
		case *ast.AutoLink:
			buf.Write(node.URL(source))
			return ast.WalkSkipChildren, nil
		case *ast.CodeBlock, *ast.FencedCodeBlock:
			writeLines(&buf, n, source)
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return buf.String()
}

func writeLines(w io.Writer, n ast.Node, source []byte) {
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		_, _ = w.Write(seg.Value(source))
	}
}
