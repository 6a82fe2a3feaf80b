package handlers_test

import (
	"testing"

	"github.com/gofiber/fiber/v2"
)

func TestUnitsAPI_AvailablePreviewIsReadOnly(t *testing.T) {
	app, db := newTestApp(t, testConfig())

	resp, body := doJSON(t, app, "GET", "/units/available?quantity=3&variantId=v-choco-12", nil)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("want 200, got %d %v", resp.StatusCode, body)
	}
	units := body["units"].([]any)
	if len(units) != 3 {
		t.Fatalf("want 3 units, got %d", len(units))
	}
	first := units[0].(map[string]any)
	if first["batchId"] != "b-choco-0326" {
		t.Fatalf("want first-expiring batch first, got %v", first["batchId"])
	}

	var unavailable int
	if err := db.Get(&unavailable, `SELECT COUNT(*) FROM units WHERE is_available = FALSE`); err != nil {
		t.Fatal(err)
	}
	if unavailable != 0 {
		t.Fatalf("preview changed %d units", unavailable)
	}

	resp, body = doJSON(t, app, "GET", "/units/available?quantity=abc", nil)
	if resp.StatusCode != fiber.StatusBadRequest || body["code"] != "VALIDATION_ERROR" {
		t.Fatalf("want 400, got %d %v", resp.StatusCode, body)
	}
}

func TestUnitsAPI_MovementRespectsAllocation(t *testing.T) {
	app, _ := newTestApp(t, testConfig())
	id := newEvent(t, app, 1)

	resp, body := doJSON(t, app, "GET", "/events/"+id, nil)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("get event: %d", resp.StatusCode)
	}
	unitID := body["allocations"].([]any)[0].(map[string]any)["unitId"].(string)

	resp, body = doJSON(t, app, "PATCH", "/units/"+unitID+"/movement", map[string]any{"movementStatus": "discarded"})
	if resp.StatusCode != fiber.StatusConflict || body["code"] != "UNIT_ALLOCATED" {
		t.Fatalf("want 409 UNIT_ALLOCATED, got %d %v", resp.StatusCode, body)
	}

	doJSON(t, app, "POST", "/events/"+id+"/release-units", nil)
	resp, body = doJSON(t, app, "PATCH", "/units/"+unitID+"/movement", map[string]any{"movementStatus": "returned", "returnReason": "melted"})
	if resp.StatusCode != fiber.StatusOK || body["movementStatus"] != "returned" || body["isAvailable"] != false {
		t.Fatalf("returned: %d %v", resp.StatusCode, body)
	}

	resp, body = doJSON(t, app, "GET", "/units/"+unitID, nil)
	if resp.StatusCode != fiber.StatusOK || body["allocated"] != false || body["returnReason"] != "melted" {
		t.Fatalf("get unit: %d %v", resp.StatusCode, body)
	}
	resp, _ = doJSON(t, app, "GET", "/units/missing", nil)
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("want 404, got %d", resp.StatusCode)
	}
}

func TestBatchesAPI_CreateGetSell(t *testing.T) {
	app, _ := newTestApp(t, testConfig())

	resp, body := doJSON(t, app, "POST", "/batches", map[string]any{
		"name": "Mango July", "productVariantId": "v-mango-12", "productionDate": "2026-07-01",
		"expirationDate": "2027-07-01", "quantity": 4, "batchCode": "MA0726",
	})
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("create: want 201, got %d %v", resp.StatusCode, body)
	}
	id := body["id"].(string)

	resp, body = doJSON(t, app, "POST", "/batches/"+id+"/sell", map[string]any{"quantity": 3})
	if resp.StatusCode != fiber.StatusOK || body["soldCount"].(float64) != 3 {
		t.Fatalf("sell: %d %v", resp.StatusCode, body)
	}
	resp, body = doJSON(t, app, "POST", "/batches/"+id+"/sell", map[string]any{"quantity": 2})
	if resp.StatusCode != fiber.StatusConflict || body["code"] != "INSUFFICIENT_INVENTORY" {
		t.Fatalf("oversell: want 409, got %d %v", resp.StatusCode, body)
	}

	resp, body = doJSON(t, app, "GET", "/batches/"+id, nil)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("get: %d", resp.StatusCode)
	}
	sum := body["unitsSummary"].(map[string]any)
	if sum["sold"].(float64) != 3 || sum["inStock"].(float64) != 1 {
		t.Fatalf("bad summary %v", sum)
	}

	resp, body = doJSON(t, app, "POST", "/batches", map[string]any{
		"name": "Ghost", "productVariantId": "v-none", "productionDate": "2026-07-01", "expirationDate": "2027-07-01", "quantity": 1,
	})
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("unknown variant: want 404, got %d %v", resp.StatusCode, body)
	}
}
