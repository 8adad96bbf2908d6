package patient

import (
	"fmt"

	"github.com/ehr/neonatal/internal/platform/phi"
)

// identifyingFields lists the draft fields encrypted at rest.
func identifyingFields(d *Draft) []*string {
	return []*string{
		&d.DocumentNumber,
		&d.Phone,
		&d.HealthInsurance,
		&d.Maternal.History,
	}
}

// sealDraft returns a copy of d with identifying fields encrypted.
func sealDraft(enc phi.FieldEncryptor, d Draft) (Draft, error) {
	if enc == nil {
		return d, nil
	}
	out := d.clone()
	for _, f := range identifyingFields(&out) {
		v, err := enc.Encrypt(*f)
		if err != nil {
			return Draft{}, fmt.Errorf("encrypt field: %w", err)
		}
		*f = v
	}
	return out, nil
}

// openDraft decrypts identifying fields of d in place.
func openDraft(enc phi.FieldEncryptor, d *Draft) error {
	if enc == nil {
		return nil
	}
	for _, f := range identifyingFields(d) {
		v, err := enc.Decrypt(*f)
		if err != nil {
			return fmt.Errorf("decrypt field: %w", err)
		}
		*f = v
	}
	return nil
}
