package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/kurumiimari/sealdex/auction"
	"github.com/kurumiimari/sealdex/auctiondb"
	"github.com/kurumiimari/sealdex/chain"
	"github.com/kurumiimari/sealdex/ghttp"
	"github.com/kurumiimari/sealdex/timelock"
)

type Client struct {
	url    string
	apiKey string
	http   *ghttp.HTTPClient
}

func NewClient(url string, apiKey string) *Client {
	return &Client{
		url:    strings.TrimRight(url, "/"),
		apiKey: apiKey,
		http:   ghttp.DefaultClient,
	}
}

func (c *Client) Status(ctx context.Context) (*NodeStatus, error) {
	res := new(NodeStatus)
	err := c.doGet(ctx, "status", res)
	return res, err
}

func (c *Client) PollHeight(ctx context.Context) (uint64, error) {
	res := new(HeightRes)
	err := c.doPost(ctx, "poll_height", nil, res)
	return res.Height, err
}

func (c *Client) Mine(ctx context.Context, count uint64) (uint64, error) {
	res := new(HeightRes)
	err := c.doPost(ctx, "dev/mine", &MineReq{Count: count}, res)
	return res.Height, err
}

func (c *Client) CreateListing(ctx context.Context, req *CreateListingReq) (*auctiondb.Listing, error) {
	res := new(auctiondb.Listing)
	err := c.doPost(ctx, "listings", req, res)
	return res, err
}

func (c *Client) GetListing(ctx context.Context, listingID uint64) (*auctiondb.Listing, error) {
	res := new(auctiondb.Listing)
	err := c.doGet(ctx, c.listingPath(listingID), res)
	return res, err
}

func (c *Client) ListListings(ctx context.Context, owner chain.Principal, state auctiondb.ListingState, count, offset int) ([]*auctiondb.Listing, error) {
	q := PaginationQuery(count, offset)
	if owner != "" {
		q.Set("owner", owner.String())
	}
	if state != "" {
		q.Set("state", string(state))
	}
	res := new(ListingsRes)
	err := c.doGet(ctx, QueryStringPath("listings", q), res)
	return res.Listings, err
}

func (c *Client) SealBid(ctx context.Context, listingID uint64, amount uint64) (*timelock.Envelope, error) {
	res := new(SealBidRes)
	err := c.doPost(ctx, c.listingPath(listingID, "seal"), &SealBidReq{Amount: amount}, res)
	return res.Envelope, err
}

func (c *Client) SubmitBid(ctx context.Context, listingID uint64, bidder chain.Principal, env *timelock.Envelope) (*auctiondb.Bid, error) {
	res := new(auctiondb.Bid)
	err := c.doPost(ctx, c.listingPath(listingID, "bids"), &SubmitBidReq{
		Bidder:   bidder.String(),
		Envelope: env.Bytes(),
	}, res)
	return res, err
}

func (c *Client) ListBids(ctx context.Context, listingID uint64) ([]*auctiondb.Bid, error) {
	res := new(BidsRes)
	err := c.doGet(ctx, c.listingPath(listingID, "bids"), res)
	return res.Bids, err
}

func (c *Client) GetBid(ctx context.Context, bidID uint64) (*auctiondb.Bid, error) {
	res := new(auctiondb.Bid)
	err := c.doGet(ctx, fmt.Sprintf("bids/%d", bidID), res)
	return res, err
}

func (c *Client) ListBidsByBidder(ctx context.Context, bidder chain.Principal, count, offset int) ([]*auctiondb.Bid, error) {
	res := new(BidsRes)
	err := c.doGet(ctx, QueryStringPath(fmt.Sprintf("bidders/%s/bids", bidder), PaginationQuery(count, offset)), res)
	return res.Bids, err
}

func (c *Client) Winner(ctx context.Context, listingID uint64) (*auction.RevealedBid, error) {
	res := new(auction.RevealedBid)
	err := c.doGet(ctx, c.listingPath(listingID, "winner"), res)
	return res, err
}

func (c *Client) SelectWinner(ctx context.Context, listingID uint64) (*SelectWinnerRes, error) {
	res := new(SelectWinnerRes)
	err := c.doPost(ctx, c.listingPath(listingID, "select_winner"), nil, res)
	return res, err
}

func (c *Client) CancelListing(ctx context.Context, listingID uint64, caller chain.Principal) (*auctiondb.Listing, error) {
	res := new(auctiondb.Listing)
	err := c.doPost(ctx, c.listingPath(listingID, "cancel"), &CancelListingReq{
		Caller: caller.String(),
	}, res)
	return res, err
}

func (c *Client) InitiatePayment(ctx context.Context, listingID uint64, req *InitiatePaymentReq) (*auction.SettlementView, error) {
	res := new(auction.SettlementView)
	err := c.doPost(ctx, c.listingPath(listingID, "payments"), req, res)
	return res, err
}

func (c *Client) ListSettlements(ctx context.Context, listingID uint64) ([]*auction.SettlementView, error) {
	res := new(SettlementsRes)
	err := c.doGet(ctx, c.listingPath(listingID, "settlements"), res)
	return res.Settlements, err
}

func (c *Client) ListStaleSettlements(ctx context.Context) ([]*auction.SettlementView, error) {
	res := new(SettlementsRes)
	err := c.doGet(ctx, QueryStringPath("settlements", url.Values{"stale": []string{"true"}}), res)
	return res.Settlements, err
}

func (c *Client) GetSettlement(ctx context.Context, requestID string) (*auction.SettlementView, error) {
	res := new(auction.SettlementView)
	err := c.doGet(ctx, "settlements/"+requestID, res)
	return res, err
}

func (c *Client) FailSettlement(ctx context.Context, requestID string, reason string) (*auction.SettlementView, error) {
	res := new(auction.SettlementView)
	err := c.doPost(ctx, "settlements/"+requestID+"/fail", &FailSettlementReq{Reason: reason}, res)
	return res, err
}

func (c *Client) DeliverDecryption(ctx context.Context, req *DecryptionCallbackReq) (auction.Outcome, error) {
	res := new(CallbackRes)
	err := c.doPost(ctx, "callbacks/decryptions", req, res)
	return res.Outcome, err
}

func (c *Client) DeliverFulfillment(ctx context.Context, req *FulfillmentCallbackReq) (auction.Outcome, error) {
	res := new(CallbackRes)
	err := c.doPost(ctx, "callbacks/fulfillments", req, res)
	return res.Outcome, err
}

func (c *Client) DeliverFulfillmentFailure(ctx context.Context, req *FulfillmentFailureCallbackReq) (auction.Outcome, error) {
	res := new(CallbackRes)
	err := c.doPost(ctx, "callbacks/fulfillment_failures", req, res)
	return res.Outcome, err
}

func (c *Client) doGet(ctx context.Context, path string, resObj interface{}) error {
	return c.http.DoGetJSON(ctx, c.endpoint(path), resObj, ghttp.WithHeader("X-API-Key", c.apiKey))
}

func (c *Client) doPost(ctx context.Context, path string, reqObj interface{}, resObj interface{}) error {
	return c.http.DoPostJSON(ctx, c.endpoint(path), reqObj, resObj, ghttp.WithHeader("X-API-Key", c.apiKey))
}

func (c *Client) endpoint(path string) string {
	return fmt.Sprintf("%s/api/v1/%s", c.url, path)
}

func (c *Client) listingPath(listingID uint64, suffixes ...string) string {
	return strings.Join(append([]string{"listings", strconv.FormatUint(listingID, 10)}, suffixes...), "/")
}

func QueryStringPath(name string, q url.Values) string {
	return fmt.Sprintf("%s?%s", name, q.Encode())
}

func PaginationQuery(count, offset int) url.Values {
	return url.Values{
		"count":  []string{strconv.Itoa(count)},
		"offset": []string{strconv.Itoa(offset)},
	}
}
