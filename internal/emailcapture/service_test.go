package emailcapture

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/miravo-storefront/pkg/db/models"
	pkgerrors "github.com/angelmondragon/miravo-storefront/pkg/errors"
	"github.com/angelmondragon/miravo-storefront/pkg/metrics"
)

func newService(t *testing.T) (*Service, *Repository) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&models.EmailCapture{}))
	repo := NewRepository(conn)
	return NewService(repo, "MIRAVO15", nil, metrics.NewStorefront(prometheus.NewRegistry())), repo
}

func TestCaptureIssuesCodeOnce(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	first, err := svc.Capture(ctx, "Asha@Miravo.in ", "Asha")
	require.NoError(t, err)
	assert.True(t, first.Success)
	assert.Equal(t, MessageNew, first.Message)
	assert.Regexp(t, regexp.MustCompile(`^MIRAVO15-[0-9A-Z]{6}$`), first.DiscountCode)

	second, err := svc.Capture(ctx, "asha@miravo.in", "")
	require.NoError(t, err)
	assert.Equal(t, first.DiscountCode, second.DiscountCode)
	assert.Equal(t, MessageReturning, second.Message)
}

func TestCaptureRequiresEmail(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.Capture(context.Background(), "  ", "x")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestCaptureStoresName(t *testing.T) {
	ctx := context.Background()
	svc, repo := newService(t)
	_, err := svc.Capture(ctx, "nia@miravo.in", " Nia ")
	require.NoError(t, err)

	stored, err := repo.FindByEmail(ctx, "nia@miravo.in")
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.NotNil(t, stored.Name)
	assert.Equal(t, "Nia", *stored.Name)
}

func TestNewCodeUsesPrefix(t *testing.T) {
	svc, _ := newService(t)
	svc.prefix = "WELCOME"
	svc.random = func(int) int { return 10 }
	assert.Equal(t, "WELCOME-AAAAAA", svc.newCode())
}
