// Package pdf strips password protection from PDF attachments.
package pdf

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// ErrDecryption is returned for a wrong password or a corrupt file.
var ErrDecryption = errors.New("pdf decryption failed")

// Decryptor produces a password-free copy of a PDF file. The pipeline
// depends on this interface; tests substitute it.
type Decryptor interface {
	// Decrypt reads the PDF at inPath and writes a decrypted copy to
	// outPath. An empty password is valid and means the file is expected
	// to be unencrypted.
	Decrypt(inPath, outPath, password string) error
}

// PDFCPUDecryptor implements Decryptor with pdfcpu.
type PDFCPUDecryptor struct{}

// NewDecryptor creates the production decryptor
func NewDecryptor() *PDFCPUDecryptor {
	return &PDFCPUDecryptor{}
}

// Decrypt removes encryption from the file using the rule's password. Files
// that turn out not to be encrypted are passed through unchanged as long as
// they validate as well-formed PDFs.
func (d *PDFCPUDecryptor) Decrypt(inPath, outPath, password string) error {
	conf := model.NewDefaultConfiguration()
	conf.UserPW = password
	conf.OwnerPW = password

	if err := api.DecryptFile(inPath, outPath, conf); err != nil {
		// Not encrypted at all: pass through if the file is well formed.
		if verr := api.ValidateFile(inPath, model.NewDefaultConfiguration()); verr == nil {
			if cerr := copyFile(inPath, outPath); cerr != nil {
				return fmt.Errorf("failed to copy unencrypted pdf: %w", cerr)
			}
			return nil
		}
		return fmt.Errorf("%v: %w", err, ErrDecryption)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
