package commerce

import "github.com/go-chi/chi/v5"

// MountRoutes registers the staff document routes.
func (h *Handler) MountRoutes(r chi.Router) {
	for _, kind := range []Kind{KindQuote, KindInvoice} {
		r.Route("/"+routeSegment(kind), func(r chi.Router) {
			r.Get("/", h.list(kind))
			r.Post("/", h.create(kind))
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.get(kind))
				r.Put("/", h.update(kind))
				r.Post("/status", h.changeStatus(kind))
				r.Post("/send", h.send(kind))
				r.Get("/history", h.history(kind))
				r.Get("/pdf", h.pdf(kind))
				switch kind {
				case KindQuote:
					r.Post("/convert", h.convert)
				case KindInvoice:
					r.Post("/payments", h.registerPayment)
				}
			})
		})
	}
}

// MountRoutes registers the anonymous token routes.
func (h *PublicHandler) MountRoutes(r chi.Router) {
	r.Route("/quote/{token}", func(r chi.Router) {
		r.Get("/", h.fetch(KindQuote))
		r.Get("/pdf", h.quotePDF)
		r.Post("/accept", h.accept)
		r.Post("/reject", h.reject)
		r.Post("/request-changes", h.requestChanges)
	})
	r.Get("/invoice/{token}", h.fetch(KindInvoice))
}

func routeSegment(kind Kind) string {
	if kind == KindInvoice {
		return "invoices"
	}
	return "quotes"
}
