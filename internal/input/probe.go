package input

import (
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// PageCount reads the page count of the PDF at path. Inputs that are not
// parseable PDFs return an error; callers treat the count as optional.
func PageCount(path string) (n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			n, err = 0, fmt.Errorf("pdfcpu panic: %v", r)
		}
	}()
	return api.PageCountFile(path)
}
