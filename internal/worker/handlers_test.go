package worker

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"

	"trust-pipeline/internal/giftcard"
	"trust-pipeline/internal/mailer"
	"trust-pipeline/internal/models"
)

type fakeAssetStore struct {
	asset  models.ParticipationAsset
	sha256 string
	phash  string
}

func (f *fakeAssetStore) GetAsset(_ context.Context, _ string) (models.ParticipationAsset, error) {
	return f.asset, nil
}

func (f *fakeAssetStore) UpdateAssetDigests(_ context.Context, _, sha, phash string) error {
	f.sha256 = sha
	f.phash = phash
	return nil
}

type fakeDownloader struct {
	data []byte
}

func (f *fakeDownloader) Download(_ context.Context, _ string) ([]byte, error) {
	return f.data, nil
}

func TestHashHandlerWritesBothDigests(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			c := color.RGBA{A: 255}
			if y < 8 {
				c = color.RGBA{R: 255, G: 255, B: 255, A: 255}
			}
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}

	store := &fakeAssetStore{asset: models.ParticipationAsset{ID: "asset-1", StorageKey: "uploads/a.png"}}
	h := NewHashHandler(store, &fakeDownloader{data: buf.Bytes()})

	result, err := h.Handle(context.Background(), models.Job{
		ID:      "j1",
		Type:    models.JobHashDigest,
		Payload: map[string]any{"asset_id": "asset-1"},
	})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(store.sha256) != 64 {
		t.Fatalf("expected 64-char sha256, got %q", store.sha256)
	}
	if len(store.phash) != 16 {
		t.Fatalf("expected 16-char phash, got %q", store.phash)
	}
	if result["sha256"] != store.sha256 {
		t.Fatalf("result digest mismatch: %+v", result)
	}
}

func TestHashHandlerRequiresAssetID(t *testing.T) {
	h := NewHashHandler(&fakeAssetStore{}, &fakeDownloader{})
	if _, err := h.Handle(context.Background(), models.Job{Payload: map[string]any{}}); err == nil {
		t.Fatal("expected error for missing asset_id")
	}
}

type fakeRedemptionStore struct {
	redemption models.GiftRedemption
	savedCode  string
}

func (f *fakeRedemptionStore) GetRedemption(_ context.Context, _ string) (models.GiftRedemption, error) {
	return f.redemption, nil
}

func (f *fakeRedemptionStore) CompleteRedemption(_ context.Context, _, code string) (bool, error) {
	f.savedCode = code
	return true, nil
}

type fakeVendor struct {
	orders int
}

func (f *fakeVendor) PlaceOrder(_ context.Context, _, _ string) (giftcard.Order, error) {
	f.orders++
	return giftcard.Order{Code: "CARD-123"}, nil
}

func TestGiftHandlerOrdersOnce(t *testing.T) {
	store := &fakeRedemptionStore{redemption: models.GiftRedemption{ID: "r1", SKU: "coffee-10"}}
	vendor := &fakeVendor{}
	h := NewGiftHandler(store, vendor)

	_, err := h.Handle(context.Background(), models.Job{Payload: map[string]any{"redemption_id": "r1"}})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if vendor.orders != 1 || store.savedCode != "CARD-123" {
		t.Fatalf("expected one order recorded, got orders=%d code=%q", vendor.orders, store.savedCode)
	}
}

func TestGiftHandlerShortCircuitsCompleted(t *testing.T) {
	code := "ALREADY"
	store := &fakeRedemptionStore{redemption: models.GiftRedemption{ID: "r1", SKU: "coffee-10", Code: &code}}
	vendor := &fakeVendor{}
	h := NewGiftHandler(store, vendor)

	result, err := h.Handle(context.Background(), models.Job{Payload: map[string]any{"redemption_id": "r1"}})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if vendor.orders != 0 {
		t.Fatalf("expected no vendor order on completed redemption, got %d", vendor.orders)
	}
	if result["already_completed"] != true {
		t.Fatalf("expected short-circuit result, got %+v", result)
	}
}

type fakeSender struct {
	sent []mailer.Message
}

func (f *fakeSender) Send(_ context.Context, msg mailer.Message) error {
	f.sent = append(f.sent, msg)
	return nil
}

type deniedLimiter struct{}

func (deniedLimiter) Allow(_ context.Context) (bool, float64, error) {
	return false, 0, nil
}

func TestEmailHandlerRespectsLimiter(t *testing.T) {
	sender := &fakeSender{}
	h := NewEmailHandler(sender, deniedLimiter{})

	_, err := h.Handle(context.Background(), models.Job{Payload: map[string]any{
		"to":      "tester@example.com",
		"subject": "Reward on its way",
	}})
	if err == nil {
		t.Fatal("expected rate limit failure")
	}
	if len(sender.sent) != 0 {
		t.Fatalf("expected nothing sent when limited, got %d", len(sender.sent))
	}
}

func TestEmailHandlerSends(t *testing.T) {
	sender := &fakeSender{}
	h := NewEmailHandler(sender, nil)

	_, err := h.Handle(context.Background(), models.Job{Payload: map[string]any{
		"to":      "tester@example.com",
		"subject": "Reward on its way",
		"html":    "<p>Congrats</p>",
	}})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(sender.sent) != 1 || sender.sent[0].To != "tester@example.com" {
		t.Fatalf("unexpected sent messages: %+v", sender.sent)
	}
}
