package api

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/kurumiimari/sealdex/auction"
	"github.com/kurumiimari/sealdex/chain"
	"github.com/kurumiimari/sealdex/log"
	"github.com/pkg/errors"
)

var apiLogger = log.ModuleLogger("api")

type ErrorResponse struct {
	Msg  string `json:"msg"`
	Code string `json:"code"`
}

var invalidJSONRes = &ErrorResponse{
	Msg:  "Mal-formed JSON payload.",
	Code: "InvalidJSON",
}

func UnmarshalRequestJSON(w http.ResponseWriter, r *http.Request, in interface{}) bool {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(in); err == nil {
		return true
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	MarshalResponseJSON(w, invalidJSONRes)
	return false
}

// StatusFor maps an error's kind to an HTTP status code.
func StatusFor(err error) int {
	switch auction.KindOf(err) {
	case auction.KindValidation:
		return http.StatusBadRequest
	case auction.KindNotFound:
		return http.StatusNotFound
	case auction.KindStateConflict:
		return http.StatusConflict
	case auction.KindExternalIntegrity:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func MarshalErrorJSON(w http.ResponseWriter, err error) {
	code := StatusFor(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if code >= 500 {
		apiLogger.Error("error handling request", "err", err)
	} else {
		apiLogger.Debug("rejected request", "err", err, "code", auction.CodeOf(err))
	}
	MarshalResponseJSON(w, &ErrorResponse{
		Msg:  err.Error(),
		Code: auction.CodeOf(err),
	})
}

func MarshalResponseJSON(w http.ResponseWriter, out interface{}) {
	w.Header().Set("Content-Type", "application/json")
	data, err := json.Marshal(out)
	if err != nil {
		apiLogger.Panic("error marshaling JSON response, shutting down", "err", err)
	}
	if _, err := w.Write(data); err != nil {
		apiLogger.Warning("error writing JSON response")
	}
}

type API struct {
	network *chain.Network
	node    *Node
	apiKey  string
}

func NewAPI(network *chain.Network, node *Node, apiKey string) http.Handler {
	api := &API{
		network: network,
		node:    node,
		apiKey:  apiKey,
	}
	r := mux.NewRouter()
	r.Use(api.apiKeyMiddleware)
	v1 := r.PathPrefix("/api/v1").Subrouter()
	getOnly(v1.HandleFunc("/status", api.Status))
	postOnly(v1.HandleFunc("/poll_height", api.PollHeight))
	jsonPostOnly(v1.HandleFunc("/dev/mine", api.HandleDevMinePOST))
	getOnly(v1.HandleFunc("/listings", api.HandleListingsGET))
	jsonPostOnly(v1.HandleFunc("/listings", api.HandleListingsPOST))
	listings := v1.PathPrefix("/listings/{listingID:[0-9]+}").Subrouter()
	getOnly(listings.HandleFunc("", api.HandleListingGET))
	getOnly(listings.HandleFunc("/bids", api.HandleListingBidsGET))
	jsonPostOnly(listings.HandleFunc("/bids", api.HandleListingBidsPOST))
	jsonPostOnly(listings.HandleFunc("/seal", api.HandleSealPOST))
	getOnly(listings.HandleFunc("/winner", api.HandleWinnerGET))
	postOnly(listings.HandleFunc("/select_winner", api.HandleSelectWinnerPOST))
	jsonPostOnly(listings.HandleFunc("/cancel", api.HandleCancelPOST))
	jsonPostOnly(listings.HandleFunc("/payments", api.HandlePaymentsPOST))
	getOnly(listings.HandleFunc("/settlements", api.HandleListingSettlementsGET))
	getOnly(v1.HandleFunc("/bids/{bidID:[0-9]+}", api.HandleBidGET))
	getOnly(v1.HandleFunc("/bidders/{bidder}/bids", api.HandleBidderBidsGET))
	getOnly(v1.HandleFunc("/settlements", api.HandleSettlementsGET))
	getOnly(v1.HandleFunc("/settlements/{requestID}", api.HandleSettlementGET))
	jsonPostOnly(v1.HandleFunc("/settlements/{requestID}/fail", api.HandleSettlementFailPOST))
	jsonPostOnly(v1.HandleFunc("/callbacks/decryptions", api.HandleDecryptionCallbackPOST))
	jsonPostOnly(v1.HandleFunc("/callbacks/fulfillments", api.HandleFulfillmentCallbackPOST))
	jsonPostOnly(v1.HandleFunc("/callbacks/fulfillment_failures", api.HandleFulfillmentFailureCallbackPOST))
	return r
}

func (a *API) Status(w http.ResponseWriter, r *http.Request) {
	MarshalResponseJSON(w, a.node.Status())
}

func (a *API) PollHeight(w http.ResponseWriter, r *http.Request) {
	height, err := a.node.PollHeight()
	if err != nil {
		MarshalErrorJSON(w, err)
		return
	}
	MarshalResponseJSON(w, &HeightRes{Height: height})
}

func (a *API) HandleDevMinePOST(w http.ResponseWriter, r *http.Request) {
	req := new(MineReq)
	if !UnmarshalRequestJSON(w, r, req) {
		return
	}
	if req.Count == 0 {
		req.Count = 1
	}
	height, err := a.node.Mine(req.Count)
	if errors.Is(err, ErrNotDevMode) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		MarshalResponseJSON(w, &ErrorResponse{Msg: err.Error(), Code: "NotDevMode"})
		return
	}
	if err != nil {
		MarshalErrorJSON(w, err)
		return
	}
	MarshalResponseJSON(w, &HeightRes{Height: height})
}

func (a *API) apiKeyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.apiKey == "" {
			next.ServeHTTP(w, r)
			return
		}

		providedKey := r.Header.Get("X-API-Key")
		if providedKey != a.apiKey {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			MarshalResponseJSON(w, &ErrorResponse{Msg: "invalid API key", Code: "Unauthorized"})
			return
		}

		next.ServeHTTP(w, r)
	})
}

func getOnly(route *mux.Route) {
	route.Methods("GET")
}

func postOnly(route *mux.Route) *mux.Route {
	route.Methods("POST")
	return route
}

func jsonPostOnly(route *mux.Route) {
	postOnly(route).
		Headers("Content-Type", "application/json")
}

func uint64Var(r *http.Request, name string) uint64 {
	// Route patterns only admit digits; overflow parses to zero and is
	// reported as not found by the lookup.
	val, _ := strconv.ParseUint(mux.Vars(r)[name], 10, 64)
	return val
}

func GetIntFromQuery(query url.Values, key string, initial int) int {
	valStr := query.Get(key)
	if valStr == "" {
		return initial
	}
	valI, err := strconv.Atoi(valStr)
	if err != nil || valI < 0 {
		return initial
	}
	return valI
}

func parsePrincipal(s string) (chain.Principal, error) {
	p, err := chain.ParsePrincipal(s)
	if err != nil {
		return "", errors.Wrapf(auction.ErrInvalidPrincipal, "%q", s)
	}
	return p, nil
}
