package db

import (
	"context"
	"testing"
)

func TestCreateProject_Success(t *testing.T) {
	db := setupTestDB(t)
	defer cleanupTestDB(t, db)
	ctx := context.Background()

	p := &Project{Name: "smoking-study", Path: "/data/smoking-study"}
	if err := db.CreateProject(ctx, p); err != nil {
		t.Fatalf("CreateProject failed: %v", err)
	}
	if p.ID == 0 {
		t.Error("Expected project ID to be set after creation")
	}

	got, err := db.GetProject(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetProject failed: %v", err)
	}
	if got.Name != p.Name || got.Path != p.Path {
		t.Errorf("Expected %+v, got %+v", p, got)
	}
	if got.CreatedAt.IsZero() {
		t.Error("Expected CreatedAt to be set")
	}
}

func TestCreateProject_DuplicateName(t *testing.T) {
	db := setupTestDB(t)
	defer cleanupTestDB(t, db)
	ctx := context.Background()

	if err := db.CreateProject(ctx, &Project{Name: "study", Path: "/a"}); err != nil {
		t.Fatalf("CreateProject failed: %v", err)
	}
	err := db.CreateProject(ctx, &Project{Name: "study", Path: "/b"})
	if !IsUniqueConstraint(err) {
		t.Errorf("Expected UNIQUE constraint error, got %v", err)
	}
}

func TestDeleteProject_CascadesToSessions(t *testing.T) {
	db := setupTestDB(t)
	defer cleanupTestDB(t, db)
	ctx := context.Background()

	p := testProject(t, db)
	s := &Session{ProjectID: p.ID, Name: "P01_wk1"}
	if err := db.InsertSession(ctx, s); err != nil {
		t.Fatalf("InsertSession failed: %v", err)
	}

	if err := db.DeleteProject(ctx, p.ID); err != nil {
		t.Fatalf("DeleteProject failed: %v", err)
	}

	if _, err := db.GetSession(ctx, s.ID); err == nil {
		t.Error("Expected session to be deleted with its project")
	}
}

func TestListProjects_OrderedByName(t *testing.T) {
	db := setupTestDB(t)
	defer cleanupTestDB(t, db)
	ctx := context.Background()

	for _, name := range []string{"zeta", "alpha"} {
		if err := db.CreateProject(ctx, &Project{Name: name, Path: "/" + name}); err != nil {
			t.Fatalf("CreateProject failed: %v", err)
		}
	}

	projects, err := db.ListProjects(ctx)
	if err != nil {
		t.Fatalf("ListProjects failed: %v", err)
	}
	if len(projects) != 2 || projects[0].Name != "alpha" {
		t.Errorf("Expected alphabetical ordering, got %+v", projects)
	}
}
