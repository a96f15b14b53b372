package returns

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/packfinderz-fulfillment/api/middleware"
	internalorders "github.com/angelmondragon/packfinderz-fulfillment/internal/orders"
	internalreturns "github.com/angelmondragon/packfinderz-fulfillment/internal/returns"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-fulfillment/pkg/errors"
)

type stubReturnsService struct {
	verify  func(ctx context.Context, input internalreturns.VerifyInput) (*internalreturns.VerifyResult, error)
	retry   func(ctx context.Context, orderID, actor uuid.UUID) (*internalreturns.VerifyResult, error)
	lost    func(ctx context.Context, input internalreturns.LostInput) (*internalorders.StatusView, error)
	receive func(ctx context.Context, input internalreturns.ReceiveInput) (*internalreturns.RecordView, error)
	settle  func(ctx context.Context, id, actor uuid.UUID) (*internalreturns.RecordView, error)
	get     func(ctx context.Context, id uuid.UUID) (*internalreturns.RecordView, error)
}

func (s *stubReturnsService) VerifyRTOReturn(ctx context.Context, input internalreturns.VerifyInput) (*internalreturns.VerifyResult, error) {
	if s.verify != nil {
		return s.verify(ctx, input)
	}
	return &internalreturns.VerifyResult{}, nil
}

func (s *stubReturnsService) RetryRTORestore(ctx context.Context, orderID, actor uuid.UUID) (*internalreturns.VerifyResult, error) {
	if s.retry != nil {
		return s.retry(ctx, orderID, actor)
	}
	return &internalreturns.VerifyResult{}, nil
}

func (s *stubReturnsService) MarkRTOLost(ctx context.Context, input internalreturns.LostInput) (*internalorders.StatusView, error) {
	if s.lost != nil {
		return s.lost(ctx, input)
	}
	return &internalorders.StatusView{ID: input.OrderID, Status: enums.OrderStatusLostInTransit}, nil
}

func (s *stubReturnsService) ReceiveReturnHandover(ctx context.Context, input internalreturns.ReceiveInput) (*internalreturns.RecordView, error) {
	if s.receive != nil {
		return s.receive(ctx, input)
	}
	return &internalreturns.RecordView{}, nil
}

func (s *stubReturnsService) SettleReturnRecord(ctx context.Context, id, actor uuid.UUID) (*internalreturns.RecordView, error) {
	if s.settle != nil {
		return s.settle(ctx, id, actor)
	}
	return &internalreturns.RecordView{ID: id}, nil
}

func (s *stubReturnsService) GetReturnRecord(ctx context.Context, id uuid.UUID) (*internalreturns.RecordView, error) {
	if s.get != nil {
		return s.get(ctx, id)
	}
	return &internalreturns.RecordView{ID: id}, nil
}

func withURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestVerifyRTOForwardsScan(t *testing.T) {
	actor := uuid.New()
	svc := &stubReturnsService{
		verify: func(ctx context.Context, input internalreturns.VerifyInput) (*internalreturns.VerifyResult, error) {
			if input.ScanValue != "SF-1234" || input.Condition != "good" || input.Actor != actor {
				t.Fatalf("unexpected input %+v", input)
			}
			return &internalreturns.VerifyResult{
				Order:         internalorders.StatusView{Status: enums.OrderStatusReturned, StockRestored: true},
				Condition:     enums.ReturnConditionGood,
				StockRestored: true,
			}, nil
		},
	}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/returns/rto/verify", strings.NewReader(`{"scan_value":"SF-1234","condition":"good"}`))
	req = req.WithContext(middleware.WithActorID(req.Context(), actor))
	resp := httptest.NewRecorder()
	VerifyRTO(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	var envelope struct {
		Data internalreturns.VerifyResult `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !envelope.Data.StockRestored || envelope.Data.Condition != enums.ReturnConditionGood {
		t.Fatalf("unexpected result %+v", envelope.Data)
	}
}

func TestVerifyRTOMissingScanValue(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/returns/rto/verify", strings.NewReader(`{"condition":"good"}`))
	resp := httptest.NewRecorder()
	VerifyRTO(&stubReturnsService{}, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestVerifyRTOAmbiguousScanIsConflict(t *testing.T) {
	svc := &stubReturnsService{
		verify: func(ctx context.Context, input internalreturns.VerifyInput) (*internalreturns.VerifyResult, error) {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "scan matches more than one order")
		},
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"scan_value":"1001","condition":"good"}`))
	resp := httptest.NewRecorder()
	VerifyRTO(svc, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", resp.Code)
	}
}

func TestRetryRestoreForwardsOrder(t *testing.T) {
	orderID := uuid.New()
	actor := uuid.New()
	svc := &stubReturnsService{
		retry: func(ctx context.Context, id, who uuid.UUID) (*internalreturns.VerifyResult, error) {
			if id != orderID || who != actor {
				t.Fatalf("unexpected order %s actor %s", id, who)
			}
			return &internalreturns.VerifyResult{Condition: enums.ReturnConditionGood, StockRestored: true}, nil
		},
	}
	req := withURLParam(httptest.NewRequest(http.MethodPost, "/", nil), "orderId", orderID.String())
	req = req.WithContext(middleware.WithActorID(req.Context(), actor))
	resp := httptest.NewRecorder()
	RetryRestore(svc, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if !strings.Contains(resp.Body.String(), `"stock_restored":true`) {
		t.Fatalf("unexpected body %s", resp.Body.String())
	}
}

func TestRetryRestoreBadOrderID(t *testing.T) {
	req := withURLParam(httptest.NewRequest(http.MethodPost, "/", nil), "orderId", "nope")
	resp := httptest.NewRecorder()
	RetryRestore(&stubReturnsService{}, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestMarkLostAcceptsEmptyBody(t *testing.T) {
	orderID := uuid.New()
	var captured internalreturns.LostInput
	svc := &stubReturnsService{
		lost: func(ctx context.Context, input internalreturns.LostInput) (*internalorders.StatusView, error) {
			captured = input
			return &internalorders.StatusView{ID: input.OrderID, Status: enums.OrderStatusLostInTransit}, nil
		},
	}
	req := withURLParam(httptest.NewRequest(http.MethodPost, "/", nil), "orderId", orderID.String())
	resp := httptest.NewRecorder()
	MarkLost(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if captured.OrderID != orderID || captured.Notes != "" {
		t.Fatalf("unexpected input %+v", captured)
	}
}

func TestMarkLostForwardsNotes(t *testing.T) {
	var captured internalreturns.LostInput
	svc := &stubReturnsService{
		lost: func(ctx context.Context, input internalreturns.LostInput) (*internalorders.StatusView, error) {
			captured = input
			return &internalorders.StatusView{}, nil
		},
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"notes":"courier lost parcel"}`))
	req = withURLParam(req, "orderId", uuid.NewString())
	resp := httptest.NewRecorder()
	MarkLost(svc, nil).ServeHTTP(resp, req)
	if captured.Notes != "courier lost parcel" {
		t.Fatalf("notes not forwarded: %+v", captured)
	}
}

func TestReceiveHandoverBindsItems(t *testing.T) {
	actor := uuid.New()
	itemID := uuid.New()
	svc := &stubReturnsService{
		receive: func(ctx context.Context, input internalreturns.ReceiveInput) (*internalreturns.RecordView, error) {
			if input.Source != enums.ReturnSourceRider || input.Actor != actor || len(input.Items) != 1 {
				t.Fatalf("unexpected input %+v", input)
			}
			if input.Items[0].OrderItemID != itemID || input.Items[0].Condition != enums.ItemConditionDamaged {
				t.Fatalf("unexpected item %+v", input.Items[0])
			}
			return &internalreturns.RecordView{Source: input.Source, Status: enums.ReturnRecordReceived}, nil
		},
	}
	body := `{"source":"rider","source_ref":"MF-20261014-ABCDEF","items":[{"order_item_id":"` + itemID.String() + `","condition":"damaged"}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/returns/handovers", strings.NewReader(body))
	req = req.WithContext(middleware.WithActorID(req.Context(), actor))
	resp := httptest.NewRecorder()
	ReceiveHandover(svc, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestReceiveHandoverRejectsUnknownCondition(t *testing.T) {
	body := `{"source":"rider","items":[{"order_item_id":"` + uuid.NewString() + `","condition":"soggy"}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/returns/handovers", strings.NewReader(body))
	resp := httptest.NewRecorder()
	ReceiveHandover(&stubReturnsService{}, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestSettleRecordAlreadySettled(t *testing.T) {
	recordID := uuid.New()
	svc := &stubReturnsService{
		settle: func(ctx context.Context, id, actor uuid.UUID) (*internalreturns.RecordView, error) {
			if id != recordID {
				t.Fatalf("unexpected id %s", id)
			}
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "return record already settled")
		},
	}
	req := withURLParam(httptest.NewRequest(http.MethodPost, "/", nil), "recordId", recordID.String())
	resp := httptest.NewRecorder()
	SettleRecord(svc, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", resp.Code)
	}
}

func TestGetRecord(t *testing.T) {
	recordID := uuid.New()
	req := withURLParam(httptest.NewRequest(http.MethodGet, "/", nil), "recordId", recordID.String())
	resp := httptest.NewRecorder()
	GetRecord(&stubReturnsService{}, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	var envelope struct {
		Data internalreturns.RecordView `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.ID != recordID {
		t.Fatalf("unexpected record id %s", envelope.Data.ID)
	}
}
