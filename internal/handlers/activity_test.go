package handlers

import (
	"io"
	"strings"
	"testing"

	"github.com/filedesk/backend/internal/models"
	"github.com/filedesk/backend/internal/services"
)

func TestActivityListNewestFirst(t *testing.T) {
	env := setupTestEnv(t)
	admin, adminToken := createTestUser(t, env.db, "adm@filedesk.local", "password123", models.UserRoleAdmin)

	activity := services.NewActivityService(env.db)
	activity.Record(admin, "10.0.0.1", "First action")
	activity.Record(admin, "10.0.0.1", "Second action")

	resp := performJSONRequest(t, env.app, "GET", "/api/activity/", nil, authHeaders(adminToken))
	assertStatus(t, resp, 200)

	body := decodeJSONMap(t, resp)
	items, _ := body["data"].([]any)
	if len(items) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(items))
	}
	first, _ := items[0].(map[string]any)
	if first["action"] != "Second action" {
		t.Fatalf("expected newest entry first, got %+v", first)
	}
}

func TestActivityExportCSV(t *testing.T) {
	env := setupTestEnv(t)
	admin, adminToken := createTestUser(t, env.db, "adm@filedesk.local", "password123", models.UserRoleAdmin)

	services.NewActivityService(env.db).Record(admin, "10.0.0.1", "Uploaded file \"report.pdf\"")

	resp := performJSONRequest(t, env.app, "GET", "/api/activity/export", nil, authHeaders(adminToken))
	assertStatus(t, resp, 200)

	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Fatalf("expected CSV content type, got %q", ct)
	}

	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed reading export: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header plus one row, got %d lines", len(lines))
	}
	if !strings.HasPrefix(lines[0], "timestamp,user,role,action") {
		t.Fatalf("unexpected header %q", lines[0])
	}
	if !strings.Contains(lines[1], "adm@filedesk.local") || !strings.Contains(lines[1], "admin") {
		t.Fatalf("row missing actor details: %q", lines[1])
	}
}

func TestDashboardSummary(t *testing.T) {
	env := setupTestEnv(t)
	_, empToken := createTestUser(t, env.db, "emp@filedesk.local", "password123", models.UserRoleEmployee)
	_, mgrToken := createTestUser(t, env.db, "mgr@filedesk.local", "password123", models.UserRoleManager)

	uploadFile(t, env, empToken, "one.txt", []byte("1"))
	uploadFile(t, env, mgrToken, "two.txt", []byte("2"))

	resp := performJSONRequest(t, env.app, "GET", "/api/dashboard/", nil, authHeaders(empToken))
	assertStatus(t, resp, 200)

	body := decodeJSONMap(t, resp)
	data, _ := body["data"].(map[string]any)
	if total, _ := data["totalFiles"].(float64); total != 1 {
		t.Fatalf("employee dashboard should count only their files, got %v", data["totalFiles"])
	}
	if total, _ := data["totalUsers"].(float64); total != 2 {
		t.Fatalf("expected 2 users, got %v", data["totalUsers"])
	}
	recent, _ := data["recentFiles"].([]any)
	if len(recent) != 1 {
		t.Fatalf("expected 1 recent file for the employee, got %d", len(recent))
	}
}

func TestDashboardCharts(t *testing.T) {
	env := setupTestEnv(t)
	_, mgrToken := createTestUser(t, env.db, "mgr@filedesk.local", "password123", models.UserRoleManager)

	id := uploadFile(t, env, mgrToken, "charted.txt", []byte("c"))

	category := models.Category{Name: "Reports"}
	if err := env.db.Create(&category).Error; err != nil {
		t.Fatalf("failed creating category: %v", err)
	}
	resp := performJSONRequest(t, env.app, "POST", "/api/assignments/", map[string]any{
		"fileID":     id,
		"categoryID": category.ID,
	}, authHeaders(mgrToken))
	assertStatus(t, resp, 201)

	resp = performJSONRequest(t, env.app, "GET", "/api/dashboard/charts", nil, authHeaders(mgrToken))
	assertStatus(t, resp, 200)

	body := decodeJSONMap(t, resp)
	data, _ := body["data"].(map[string]any)

	uploads, _ := data["uploadsPerDay"].([]any)
	if len(uploads) != 7 {
		t.Fatalf("expected 7 days of upload counts, got %d", len(uploads))
	}
	var todayCount float64
	for _, u := range uploads {
		m, _ := u.(map[string]any)
		count, _ := m["count"].(float64)
		todayCount += count
	}
	if todayCount != 1 {
		t.Fatalf("expected one upload in the window, got %v", todayCount)
	}

	byCategory, _ := data["filesByCategory"].([]any)
	if len(byCategory) != 1 {
		t.Fatalf("expected one category bucket, got %d", len(byCategory))
	}
	bucket, _ := byCategory[0].(map[string]any)
	if bucket["name"] != "Reports" {
		t.Fatalf("unexpected category bucket %+v", bucket)
	}
}
