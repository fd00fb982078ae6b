package auth

import (
	"fmt"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/arnavshah/referee-assigner-go/pkg/config"
	"github.com/arnavshah/referee-assigner-go/pkg/database"
)

func testAuth() *Authenticator {
	a := New(config.Server{JWTSecret: "jwt-test", APIMasterSecret: "master-test"})
	a.cost = bcrypt.MinCost
	return a
}

func TestTokenRoundTrip(t *testing.T) {
	a := testAuth()
	token, err := a.CreateToken("admin")
	if err != nil {
		t.Fatalf("CreateToken: %v", err)
	}
	claims, err := a.VerifyToken(token)
	if err != nil {
		t.Fatalf("VerifyToken: %v", err)
	}
	if claims.Username != "admin" {
		t.Errorf("username = %q", claims.Username)
	}

	other := New(config.Server{JWTSecret: "someone-else"})
	if _, err := other.VerifyToken(token); err == nil {
		t.Error("token signed with another secret should be rejected")
	}
}

func TestExpiredToken(t *testing.T) {
	a := testAuth()
	a.now = func() time.Time { return time.Now().Add(-48 * time.Hour) }
	token, err := a.CreateToken("admin")
	if err != nil {
		t.Fatalf("CreateToken: %v", err)
	}
	if _, err := testAuth().VerifyToken(token); err == nil {
		t.Error("expired token should be rejected")
	}
}

func TestHMACKey(t *testing.T) {
	a := testAuth()
	key := a.GenerateHMACKey("league-office")
	id, err := a.VerifyHMACKey(key)
	if err != nil || id != "league-office" {
		t.Fatalf("VerifyHMACKey = %q, %v", id, err)
	}
	if _, err := a.VerifyHMACKey("league-office.deadbeef"); err == nil {
		t.Error("tampered signature should fail")
	}
	if _, err := a.VerifyHMACKey("no-dot"); err == nil {
		t.Error("malformed key should fail")
	}
}

func TestEnsureAdminExists(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	a := testAuth()
	cfg := config.Server{AdminUsername: "assignor", AdminPassword: "whistle"}
	if err := a.EnsureAdminExists(db, cfg); err != nil {
		t.Fatalf("EnsureAdminExists: %v", err)
	}
	// second call is a no-op
	if err := a.EnsureAdminExists(db, cfg); err != nil {
		t.Fatalf("EnsureAdminExists again: %v", err)
	}

	var users []database.MasterUser
	db.Find(&users)
	if len(users) != 1 || users[0].Username != "assignor" {
		t.Fatalf("users = %+v", users)
	}
	if !CheckPasswordHash("whistle", users[0].PasswordHash) {
		t.Error("stored hash does not match password")
	}
}
