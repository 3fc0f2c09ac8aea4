package main

import (
	"path/filepath"
	"testing"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestDBAccounts(t *testing.T) {
	db := openTestDB(t)

	id, err := db.CreateAccount("Ana", "hash")
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	if id <= 0 {
		t.Fatalf("expected positive id, got %d", id)
	}

	acct, err := db.GetAccountByUsername("ana")
	if err != nil {
		t.Fatalf("GetAccountByUsername: %v", err)
	}
	if acct == nil || acct.ID != id || acct.Username != "Ana" || acct.PassHash != "hash" {
		t.Errorf("unexpected account %+v", acct)
	}

	if ok, _ := db.UsernameExists("ANA"); !ok {
		t.Error("username lookup should ignore case")
	}
	if ok, _ := db.UsernameExists("beto"); ok {
		t.Error("unknown username reported as taken")
	}
	if _, err := db.CreateAccount("aNa", "x"); err == nil {
		t.Error("duplicate username should fail")
	}

	missing, err := db.GetAccountByUsername("nobody")
	if err != nil || missing != nil {
		t.Errorf("missing account: got %+v, %v", missing, err)
	}
}

func TestDBCharacters(t *testing.T) {
	db := openTestDB(t)
	id, _ := db.CreateAccount("ana", "hash")

	c, err := db.LoadCharacter(id)
	if err != nil || c != nil {
		t.Fatalf("fresh account should have no character: %+v, %v", c, err)
	}

	if err := db.SaveCharacter(CharacterRow{AccountID: id, Name: "Ana", X: 3, Y: 4, HP: 80, Skin: 2}); err != nil {
		t.Fatalf("SaveCharacter: %v", err)
	}
	if err := db.SaveCharacter(CharacterRow{AccountID: id, Name: "Ana", X: 5, Y: 6, HP: 70, Skin: 2}); err != nil {
		t.Fatalf("SaveCharacter update: %v", err)
	}

	c, err = db.LoadCharacter(id)
	if err != nil {
		t.Fatalf("LoadCharacter: %v", err)
	}
	if c == nil || c.X != 5 || c.Y != 6 || c.HP != 70 || c.Skin != 2 || c.Name != "Ana" {
		t.Errorf("unexpected character %+v", c)
	}

	if err := db.SaveCharacter(CharacterRow{AccountID: 999, Name: "x"}); err == nil {
		t.Error("character without account should violate the foreign key")
	}
}

func TestDBSettings(t *testing.T) {
	db := openTestDB(t)

	if v := db.GetSetting("k"); v != "" {
		t.Errorf("unset setting = %q", v)
	}
	db.SetSetting("k", "one")
	db.SetSetting("k", "two")
	if v := db.GetSetting("k"); v != "two" {
		t.Errorf("setting = %q, want two", v)
	}
}
