package extension

import (
	"fmt"

	"github.com/pattyshack/badc/debugger/types"
)

type typePrinterSession struct {
	lang    *Descriptor
	session TypePrinterSession
}

// TypePrinters holds every language's type printers for the duration of a
// print operation.
type TypePrinters struct {
	registry *Registry
	sessions []typePrinterSession
}

func (registry *Registry) StartTypePrinters() *TypePrinters {
	printers := &TypePrinters{
		registry: registry,
	}

	for _, lang := range registry.extensions {
		provider, ok := lang.Ops.(TypePrinterProvider)
		if !ok {
			continue
		}

		session := provider.StartTypePrinters()
		if session != nil {
			printers.sessions = append(
				printers.sessions,
				typePrinterSession{
					lang:    lang,
					session: session,
				})
		}
	}

	return printers
}

// Apply returns the name chosen by the first language which recognizes t.
func (printers *TypePrinters) Apply(t *types.Type) (string, bool, error) {
	for _, entry := range printers.sessions {
		var name string
		status := StatusNop
		err := printers.registry.withActive(entry.lang, func() error {
			var err error
			name, status, err = entry.session.Apply(t)
			return err
		})
		if err != nil {
			return "", false, fmt.Errorf(
				"%s: %w",
				entry.lang.CapitalizedName,
				err)
		}

		if status == StatusOK {
			return name, true, nil
		}
	}

	return "", false, nil
}

func (printers *TypePrinters) Close() {
	for _, entry := range printers.sessions {
		entry.session.Close()
	}
	printers.sessions = nil
}
