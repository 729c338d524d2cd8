package document

import (
	"errors"
	"fmt"

	"github.com/ledongthuc/pdf"
)

// ErrReportInvalid is returned when a written report cannot be read back
var ErrReportInvalid = errors.New("report verification failed")

// VerifyReport reopens a written report and checks its page count.
// wantPages <= 0 only checks that the file parses.
func VerifyReport(path string, wantPages int) (err error) {
	defer func() {
		// ledongthuc/pdf panics on some malformed inputs
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s: %v", ErrReportInvalid, path, r)
		}
	}()

	f, reader, err := pdf.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrReportInvalid, path, err)
	}
	defer f.Close()

	got := reader.NumPage()
	if got == 0 {
		return fmt.Errorf("%w: %s has no pages", ErrReportInvalid, path)
	}
	if wantPages > 0 && got != wantPages {
		return fmt.Errorf("%w: %s has %d pages, expected %d", ErrReportInvalid, path, got, wantPages)
	}
	return nil
}
