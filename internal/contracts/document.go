package contracts

import "encoding/base64"

// Document is a compiled contract.
type Document struct {
	PDF      []byte
	FileName string
	// DownloadURL is a presigned link to the archived copy, when archiving is enabled.
	DownloadURL string
	Cached      bool
}

// DataURL returns the PDF encoded as a data URL suitable for direct download
// in the browser.
func (d *Document) DataURL() string {
	return "data:application/pdf;base64," + base64.StdEncoding.EncodeToString(d.PDF)
}
