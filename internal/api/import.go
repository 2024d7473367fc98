package api

import (
	"net/http"

	"riderdispatch/internal/importer"
	"riderdispatch/internal/model"
)

func (s *Server) importCSV(r *http.Request) ([]model.DeliveryIn, error) {
	defer r.Body.Close()
	ins, err := importer.ParseDeliveries(r.Body)
	if err != nil {
		return nil, err
	}
	for i := range ins {
		if err := validateDeliveryIn(&ins[i]); err != nil {
			return nil, err
		}
	}
	return ins, nil
}
