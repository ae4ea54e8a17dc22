package parser

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"strings"

	"golang.org/x/net/html"
)

// An EPUB is a zip with META-INF/container.xml pointing at the OPF package
// document. Each XHTML item in the spine becomes one page.

type epubContainer struct {
	Rootfiles []struct {
		FullPath string `xml:"full-path,attr"`
	} `xml:"rootfiles>rootfile"`
}

type epubPackage struct {
	Manifest []struct {
		ID        string `xml:"id,attr"`
		Href      string `xml:"href,attr"`
		MediaType string `xml:"media-type,attr"`
	} `xml:"manifest>item"`
	Spine []struct {
		IDRef string `xml:"idref,attr"`
	} `xml:"spine>itemref"`
}

func openEPUB(p string) (Source, error) {
	zr, err := zip.OpenReader(p)
	if err != nil {
		return nil, fmt.Errorf("open epub: %w", err)
	}
	defer zr.Close()

	files := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		files[f.Name] = f
	}

	var container epubContainer
	if err := decodeZipXML(files, "META-INF/container.xml", &container); err != nil {
		return nil, err
	}
	if len(container.Rootfiles) == 0 || container.Rootfiles[0].FullPath == "" {
		return nil, fmt.Errorf("epub: container.xml has no rootfile")
	}
	opfPath := container.Rootfiles[0].FullPath

	var pkg epubPackage
	if err := decodeZipXML(files, opfPath, &pkg); err != nil {
		return nil, err
	}

	base := path.Dir(opfPath)
	hrefs := make(map[string]string, len(pkg.Manifest))
	for _, item := range pkg.Manifest {
		if isXHTML(item.MediaType) {
			hrefs[item.ID] = path.Join(base, item.Href)
		}
	}

	var pages []string
	for _, ref := range pkg.Spine {
		name, ok := hrefs[ref.IDRef]
		if !ok {
			continue
		}
		f, ok := files[name]
		if !ok {
			return nil, fmt.Errorf("epub: spine item %q missing from archive", name)
		}
		text, err := epubChapterText(f)
		if err != nil {
			return nil, fmt.Errorf("epub chapter %s: %w", name, err)
		}
		pages = append(pages, text)
	}

	return NewStaticSource(pages), nil
}

func isXHTML(mediaType string) bool {
	return mediaType == "application/xhtml+xml" || mediaType == "text/html"
}

func decodeZipXML(files map[string]*zip.File, name string, v any) error {
	f, ok := files[name]
	if !ok {
		return fmt.Errorf("epub: missing %s", name)
	}
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("epub: open %s: %w", name, err)
	}
	defer rc.Close()
	if err := xml.NewDecoder(rc).Decode(v); err != nil {
		return fmt.Errorf("epub: decode %s: %w", name, err)
	}
	return nil
}

func epubChapterText(f *zip.File) (string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()

	doc, err := html.Parse(io.LimitReader(rc, 32<<20))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(htmlTree(doc, "").Text()), nil
}
