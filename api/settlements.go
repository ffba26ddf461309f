package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/kurumiimari/sealdex/auction"
	"github.com/pkg/errors"
)

func (a *API) HandlePaymentsPOST(w http.ResponseWriter, r *http.Request) {
	req := new(InitiatePaymentReq)
	if !UnmarshalRequestJSON(w, r, req) {
		return
	}
	payer, err := parsePrincipal(req.Payer)
	if err != nil {
		MarshalErrorJSON(w, err)
		return
	}

	settlement, err := a.node.Coordinator().InitiatePayment(&auction.PaymentParams{
		ListingID:        uint64Var(r, "listingID"),
		Payer:            payer,
		SourceChain:      req.SourceChain,
		DestinationChain: req.DestinationChain,
		SourceAmount:     req.SourceAmount,
		ExpectedAmount:   req.ExpectedAmount,
		SolverFee:        req.SolverFee,
	})
	if err != nil {
		MarshalErrorJSON(w, err)
		return
	}
	MarshalResponseJSON(w, &auction.SettlementView{SettlementRequest: settlement})
}

func (a *API) HandleListingSettlementsGET(w http.ResponseWriter, r *http.Request) {
	views, err := a.node.Coordinator().ListSettlements(uint64Var(r, "listingID"))
	if err != nil {
		MarshalErrorJSON(w, err)
		return
	}
	MarshalResponseJSON(w, &SettlementsRes{Settlements: views})
}

// HandleSettlementsGET lists stale requests. Per-listing requests are
// served under /listings/{id}/settlements.
func (a *API) HandleSettlementsGET(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("stale") != "true" {
		MarshalErrorJSON(w, errors.Wrap(auction.ErrInvalidRequest, "stale=true is required"))
		return
	}
	views, err := a.node.Coordinator().ListStaleSettlements()
	if err != nil {
		MarshalErrorJSON(w, err)
		return
	}
	MarshalResponseJSON(w, &SettlementsRes{Settlements: views})
}

func (a *API) HandleSettlementGET(w http.ResponseWriter, r *http.Request) {
	view, err := a.node.Coordinator().GetSettlementRequest(mux.Vars(r)["requestID"])
	if err != nil {
		MarshalErrorJSON(w, err)
		return
	}
	MarshalResponseJSON(w, view)
}

func (a *API) HandleSettlementFailPOST(w http.ResponseWriter, r *http.Request) {
	req := new(FailSettlementReq)
	if !UnmarshalRequestJSON(w, r, req) {
		return
	}
	if req.Reason == "" {
		req.Reason = "marked failed by operator"
	}
	settlement, err := a.node.Coordinator().MarkFailed(mux.Vars(r)["requestID"], req.Reason)
	if err != nil {
		MarshalErrorJSON(w, err)
		return
	}
	MarshalResponseJSON(w, &auction.SettlementView{SettlementRequest: settlement})
}

func (a *API) HandleDecryptionCallbackPOST(w http.ResponseWriter, r *http.Request) {
	req := new(DecryptionCallbackReq)
	if !UnmarshalRequestJSON(w, r, req) {
		return
	}
	outcome, err := a.node.Coordinator().OnDecryptionCallback(req.Key, req.EnvelopeRef, req.Cleartext, req.Proof)
	if err != nil {
		MarshalErrorJSON(w, err)
		return
	}
	MarshalResponseJSON(w, &CallbackRes{Outcome: outcome})
}

func (a *API) HandleFulfillmentCallbackPOST(w http.ResponseWriter, r *http.Request) {
	req := new(FulfillmentCallbackReq)
	if !UnmarshalRequestJSON(w, r, req) {
		return
	}
	outcome, err := a.node.Coordinator().OnFulfillment(req.Key, req.RequestID, req.ActualAmount)
	if err != nil {
		MarshalErrorJSON(w, err)
		return
	}
	MarshalResponseJSON(w, &CallbackRes{Outcome: outcome})
}

func (a *API) HandleFulfillmentFailureCallbackPOST(w http.ResponseWriter, r *http.Request) {
	req := new(FulfillmentFailureCallbackReq)
	if !UnmarshalRequestJSON(w, r, req) {
		return
	}
	outcome, err := a.node.Coordinator().OnFulfillmentFailed(req.Key, req.RequestID, req.Reason)
	if err != nil {
		MarshalErrorJSON(w, err)
		return
	}
	MarshalResponseJSON(w, &CallbackRes{Outcome: outcome})
}
