package taxonomy

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forecourt/forecourt/internal/rbac"
	"github.com/forecourt/forecourt/internal/shared"
)

func intPtr(v int) *int { return &v }

func TestWizardWalksEveryStep(t *testing.T) {
	api := newFakeAPI(t)
	w := NewWizard(api.client())
	ctx := context.Background()

	cases := []struct {
		sel  Selections
		want StepName
	}{
		{Selections{}, StepVehicleType},
		{Selections{VehicleType: "car"}, StepMake},
		{Selections{VehicleType: "car", Make: "ford"}, StepModel},
		{Selections{VehicleType: "car", Make: "ford", Model: "focus"}, StepGeneration},
		{Selections{VehicleType: "car", Make: "ford", Model: "focus", Generation: "mk4"}, StepTrim},
		{Selections{VehicleType: "car", Make: "ford", Model: "focus", Generation: "mk4", Trim: "SE"}, StepDerivative},
		{Selections{VehicleType: "car", Make: "ford", Model: "focus", Generation: "mk4", Derivative: "d3"}, StepYear},
		{Selections{VehicleType: "car", Make: "ford", Model: "focus", Generation: "mk4", Derivative: "d3", Year: 2019}, StepMileage},
		{Selections{VehicleType: "car", Make: "ford", Model: "focus", Generation: "mk4", Derivative: "d3", Year: 2019, Mileage: intPtr(42000)}, StepValuation},
	}
	for _, tc := range cases {
		step, err := w.Resolve(ctx, tc.sel)
		require.NoError(t, err)
		assert.Equal(t, tc.want, step.Name)
	}
}

func TestWizardFacetsWhileMoreThanEightDerivatives(t *testing.T) {
	api := newFakeAPI(t)
	w := NewWizard(api.client())
	sel := Selections{VehicleType: "car", Make: "ford", Model: "focus", Generation: "mk4"}

	step, err := w.Resolve(context.Background(), sel)
	require.NoError(t, err)
	assert.Equal(t, StepTrim, step.Name)
	assert.Equal(t, 12, step.Derivatives)
	assert.Equal(t, []Option{{ID: "SE", Name: "SE"}, {ID: "Sport", Name: "Sport"}}, step.Options)

	sel.Trim = "sport"
	step, err = w.Resolve(context.Background(), sel)
	require.NoError(t, err)
	assert.Equal(t, StepDerivative, step.Name)
	assert.Len(t, step.Options, 6)
}

type stubCatalog struct {
	Catalog
	derivs []Derivative
}

func (s stubCatalog) Derivatives(ctx context.Context, generation string) ([]Derivative, error) {
	return s.derivs, nil
}

func TestWizardSkipsFacetsThatDoNotSplit(t *testing.T) {
	var derivs []Derivative
	for i := 0; i < 10; i++ {
		fuel := "Petrol"
		if i >= 5 {
			fuel = "Hybrid"
		}
		derivs = append(derivs, Derivative{ID: strconv.Itoa(i), Name: "Titanium " + fuel, Trim: "Titanium", Engine: "1.0", FuelType: fuel})
	}
	w := NewWizard(stubCatalog{derivs: derivs})
	sel := Selections{VehicleType: "car", Make: "ford", Model: "fiesta", Generation: "mk8"}

	step, err := w.Resolve(context.Background(), sel)
	require.NoError(t, err)
	assert.Equal(t, StepFuel, step.Name)

	sel.Fuel = "Diesel"
	_, err = w.Resolve(context.Background(), sel)
	assert.ErrorIs(t, err, ErrInvalidSelection)
}

func TestWizardListsDerivativesWhenNothingSplits(t *testing.T) {
	derivs := make([]Derivative, 9)
	for i := range derivs {
		derivs[i] = Derivative{ID: strconv.Itoa(i), Name: "Same", Trim: "S", Engine: "2.0", FuelType: "Diesel"}
	}
	step, err := NewWizard(stubCatalog{derivs: derivs}).Resolve(context.Background(), Selections{VehicleType: "v", Make: "m", Model: "m", Generation: "g"})
	require.NoError(t, err)
	assert.Equal(t, StepDerivative, step.Name)
	assert.Len(t, step.Options, 9)
}

func TestWizardHandler(t *testing.T) {
	api := newFakeAPI(t)
	roles := rbac.NewService(staticRole(rbac.RoleSales))
	h := NewHandler(nil, api.client(), rbac.Middleware{Service: roles})
	r := chi.NewRouter()
	r.Route("/api", h.MountRoutes)

	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/valuations/wizard", bytes.NewBufferString(body))
		req = req.WithContext(shared.ContextWithPrincipal(req.Context(), shared.Principal{UserID: 1, DealerID: 1}))
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}

	rec := post(`{"vehicleType":"car","make":"ford","model":"focus","generation":"mk4","derivative":"d1","year":2020,"mileage":30000}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var step Step
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &step))
	require.NotNil(t, step.Valuation)
	assert.EqualValues(t, 14500, step.Valuation.Retail)

	assert.Equal(t, http.StatusBadRequest, post(`{"vehicleType":"car","make":"nope"}`).Code)
	assert.Equal(t, http.StatusBadRequest, post(`{"mileage":-5,"vehicleType":"car"}`).Code)
	assert.Equal(t, http.StatusBadRequest, post(`{"colour":"red"}`).Code)
}

type staticRole string

func (s staticRole) RoleOf(ctx context.Context, userID int64) (string, error) {
	return string(s), nil
}
