package corpus

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// DocumentContent is the text and embedded media pulled out of a .docx file.
// Paragraphs come first, then table rows (cells joined with " | "), matching
// the reading order the corpus was originally built with.
type DocumentContent struct {
	Paragraphs []string
	Images     []ExtractedImage
}

// ExtractDocx opens a .docx container and extracts its paragraph text, table
// rows, and embedded media resources.
func ExtractDocx(docxPath string) (*DocumentContent, error) {
	zr, err := zip.OpenReader(docxPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open docx: %w", err)
	}
	defer zr.Close()

	content := &DocumentContent{}
	foundDocument := false

	var mediaFiles []*zip.File
	for _, f := range zr.File {
		switch {
		case f.Name == "word/document.xml":
			foundDocument = true
			rc, err := f.Open()
			if err != nil {
				return nil, fmt.Errorf("failed to open document.xml: %w", err)
			}
			paragraphs, rows, err := parseDocumentXML(rc)
			rc.Close()
			if err != nil {
				return nil, err
			}
			content.Paragraphs = append(paragraphs, rows...)
		case strings.HasPrefix(f.Name, "word/media/"):
			mediaFiles = append(mediaFiles, f)
		}
	}

	if !foundDocument {
		return nil, fmt.Errorf("no document.xml in %s", docxPath)
	}

	// Media names carry an ordinal (image1.png, image2.wmf, ...); the
	// catalog must preserve that document order.
	sort.Slice(mediaFiles, func(a, b int) bool {
		na, nb := mediaOrdinal(mediaFiles[a].Name), mediaOrdinal(mediaFiles[b].Name)
		if na != nb {
			return na < nb
		}
		return mediaFiles[a].Name < mediaFiles[b].Name
	})

	for _, f := range mediaFiles {
		rc, err := f.Open()
		if err != nil {
			continue
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			continue
		}
		ext := strings.TrimPrefix(strings.ToLower(path.Ext(f.Name)), ".")
		content.Images = append(content.Images, ExtractedImage{Ext: ext, Data: data})
	}

	return content, nil
}

var mediaOrdinalRe = regexp.MustCompile(`(\d+)\.[^.]+$`)

func mediaOrdinal(name string) int {
	m := mediaOrdinalRe.FindStringSubmatch(name)
	if m == nil {
		return 0
	}
	n, _ := strconv.Atoi(m[1])
	return n
}

// parseDocumentXML walks the WordprocessingML token stream, collecting
// non-empty paragraph texts outside tables and one " | "-joined row text per
// table row.
func parseDocumentXML(r io.Reader) (paragraphs, rows []string, err error) {
	dec := xml.NewDecoder(r)

	var (
		tableDepth int
		para       strings.Builder
		cell       strings.Builder
		rowCells   []string
		inText     bool
	)

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("failed to parse document.xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "tbl":
				tableDepth++
			case "tr":
				if tableDepth > 0 {
					rowCells = rowCells[:0]
				}
			case "tc":
				if tableDepth > 0 {
					cell.Reset()
				}
			case "t":
				inText = true
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "tbl":
				tableDepth--
			case "tr":
				if tableDepth > 0 {
					var cells []string
					for _, c := range rowCells {
						if c != "" {
							cells = append(cells, c)
						}
					}
					if len(cells) > 0 {
						rows = append(rows, strings.Join(cells, " | "))
					}
				}
			case "tc":
				if tableDepth > 0 {
					rowCells = append(rowCells, strings.TrimSpace(cell.String()))
				}
			case "p":
				if tableDepth == 0 {
					if text := strings.TrimSpace(para.String()); text != "" {
						paragraphs = append(paragraphs, text)
					}
					para.Reset()
				}
			case "t":
				inText = false
			}
		case xml.CharData:
			if inText {
				if tableDepth > 0 {
					cell.Write(t)
				} else {
					para.Write(t)
				}
			}
		}
	}

	return paragraphs, rows, nil
}
