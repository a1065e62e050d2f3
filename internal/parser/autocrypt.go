package parser

import (
	"github.com/emersion/go-message/mail"
	"github.com/felo/mailparts/internal/crypto"
	"github.com/felo/mailparts/internal/mimetree"
)

// extractAutocryptKeys collects sender keys from Autocrypt headers that the
// trust store does not know. Every failure is logged and skipped.
func (p *Parser) extractAutocryptKeys(pc *Context, msg *mimetree.Part) {
	headers := crypto.AutocryptHeaders(mail.Header{Header: msg.Header})
	if len(headers) == 0 {
		return
	}

	seen := make(map[string]bool)
	for _, ah := range headers {
		if pc.Err() != nil {
			return
		}

		infos, err := crypto.InspectKeyData(ah.KeyData)
		if err != nil {
			pc.logger.Debug("skipping autocrypt header", "addr", ah.Addr, "error", err)
			continue
		}

		for _, info := range infos {
			if seen[info.ID] {
				continue
			}
			seen[info.ID] = true

			if p.opts.TrustStore != nil {
				known, err := p.opts.TrustStore.HasPublicKey(pc.ctx, info.ID)
				if err != nil {
					pc.logger.Debug("trust store lookup failed", "key", info.ID, "error", err)
					continue
				}
				if known {
					continue
				}
			}

			pc.list.addAutocryptKey(crypto.AutocryptKey{
				Info:    info,
				Addr:    ah.Addr,
				KeyData: ah.KeyData,
			})
		}
	}
}
