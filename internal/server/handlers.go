package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/matthewhartstonge/argon2"
	"github.com/shopspring/decimal"

	"github.com/smmpanel/panelsync/internal/customerror"
	"github.com/smmpanel/panelsync/internal/jwt"
	"github.com/smmpanel/panelsync/internal/middlewares"
	"github.com/smmpanel/panelsync/internal/model"
	"github.com/smmpanel/panelsync/internal/syncer"
)

func (bs *BackendServer) registerHandler(w http.ResponseWriter, r *http.Request) {

	var registerStruct model.Register

	errUn := json.NewDecoder(r.Body).Decode(&registerStruct)
	if errUn != nil {
		http.Error(w, errUn.Error(), http.StatusBadRequest)
		log.Println("Impossible to unmarshal, error: ", errUn.Error())
		return
	}

	argon := argon2.DefaultConfig()

	encoded, errEnc := argon.HashEncoded([]byte(registerStruct.Password))
	if errEnc != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		log.Println(errEnc.Error())
		return
	}

	errDb := bs.DB.SetNewUser(registerStruct.Username, string(encoded))
	if errDb != nil {
		var pgErr *pgconn.PgError
		if errors.As(errDb, &pgErr) && pgerrcode.IsIntegrityConstraintViolation(pgErr.Code) {
			log.Println("Impossible to add user to DB, username is already exists.")
			http.Error(w, "Username is already used.", http.StatusConflict)
			return
		}
		http.Error(w, errDb.Error(), http.StatusInternalServerError)
		log.Println("Impossible to add user to DB, error: ", errDb.Error())
		return
	}

	token, errJWT := jwt.CreateJWTToken(registerStruct.Username)
	if errJWT != nil {
		http.Error(w, errJWT.Error(), http.StatusBadGateway)
		log.Println("Can't create Bearer token", errJWT.Error())
		return
	}

	_, errResp := fmt.Fprintf(w, "Successfully registred, your Bearer token: %s", token)
	if errResp != nil {
		log.Println("Error while response after registration, error: ", errResp.Error())
	}
}

func (bs *BackendServer) loginHandler(w http.ResponseWriter, r *http.Request) {
	var authUser model.Register

	errUn := json.NewDecoder(r.Body).Decode(&authUser)
	if errUn != nil {
		http.Error(w, errUn.Error(), http.StatusBadRequest)
		log.Println("Impossible to unmarshal, error: ", errUn.Error())
		return
	}

	_, pass, _, errUser := bs.DB.GetUserData(authUser.Username)
	if errUser != nil {
		http.Error(w, "Such user doesn't registered", http.StatusUnauthorized)
		log.Println(errUser.Error())
		return
	}

	ok, errDecode := argon2.VerifyEncoded([]byte(authUser.Password), []byte(pass))
	if errDecode != nil {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		log.Println(errDecode.Error())
		return
	}

	if !ok {
		http.Error(w, "No such user exist or incorrect pass.", http.StatusUnauthorized)
		return
	}

	token, errJWT := jwt.CreateJWTToken(authUser.Username)
	if errJWT != nil {
		http.Error(w, errJWT.Error(), http.StatusBadGateway)
		log.Println("Can't create Bearer token", errJWT.Error())
		return
	}

	_, errResp := fmt.Fprintf(w, "Successfully authorized, your refreshed Bearer token: %s", token)
	if errResp != nil {
		log.Println("Error while response after authorize, error: ", errResp.Error())
	}
}

type createOrderRequest struct {
	ServiceID int    `json:"service"`
	Link      string `json:"link"`
	Quantity  int    `json:"quantity"`
	Runs      int    `json:"runs,omitempty"`
	Interval  int    `json:"interval,omitempty"`
}

// createOrderHandler charges the owner, stores the order and forwards it to
// the service's provider. A provider failure leaves a visibly failed order,
// never one silently stuck pending.
func (bs *BackendServer) createOrderHandler(w http.ResponseWriter, r *http.Request) {

	uid := userID(r)

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if req.Link == "" || req.Quantity <= 0 {
		http.Error(w, "link and positive quantity are required", http.StatusUnprocessableEntity)
		return
	}

	svc, errSvc := bs.DB.GetService(req.ServiceID)
	if errSvc != nil {
		http.Error(w, "unknown service", http.StatusUnprocessableEntity)
		return
	}

	if (svc.Min > 0 && req.Quantity < svc.Min) || (svc.Max > 0 && req.Quantity > svc.Max) {
		http.Error(w, fmt.Sprintf("quantity must be between %d and %d", svc.Min, svc.Max), http.StatusUnprocessableEntity)
		return
	}

	user, errUser := bs.DB.GetUserBalance(uid)
	if errUser != nil {
		http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		return
	}

	priceUSD := svc.RateUSD.Mul(decimal.NewFromInt(int64(req.Quantity))).Div(decimal.NewFromInt(1000))
	price := model.DisplayPrice(priceUSD, user.Currency, user.DollarRate)

	order := model.Order{
		UserID:    uid,
		ServiceID: svc.ID,
		Link:      req.Link,
		Quantity:  req.Quantity,
		PriceUSD:  priceUSD,
		Price:     price,
	}

	orderID, errCreate := bs.DB.CreateOrder(order)
	if errCreate != nil {
		if errors.Is(errCreate, customerror.ErrNotEnoughMoney) {
			http.Error(w, http.StatusText(http.StatusPaymentRequired), http.StatusPaymentRequired)
			return
		}
		http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		return
	}
	order.ID = orderID

	status := model.StatusPending
	var forwardErr string

	if svc.ProviderID != nil {
		p, errProv := bs.DB.GetProvider(r.Context(), *svc.ProviderID)
		if errProv != nil || p.Status != model.ProviderActive {
			log.Printf("order %d: provider %d unavailable, left pending", orderID, *svc.ProviderID)
		} else if _, errFwd := bs.Forwarder.Forward(r.Context(), p, svc, order, req.Runs, req.Interval); errFwd != nil {
			status = model.StatusFailed
			forwardErr = customerror.Normalize(errFwd)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	writeJSON(w, map[string]any{
		"order":  orderID,
		"status": status,
		"error":  forwardErr,
	})
}

func (bs *BackendServer) getOrdersHandler(w http.ResponseWriter, r *http.Request) {

	orders, errOrders := bs.DB.GetOrdersByUserID(userID(r))
	if errOrders != nil {
		http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		return
	}

	if orders == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	writeJSON(w, orders)
}

// syncOrdersHandler is the on-demand "sync my orders" trigger. It shares the
// batch driver with the scheduled entrypoint but runs under a wall-clock
// budget and order cap so the caller's request never times out; the summary
// reports accurate partial progress.
func (bs *BackendServer) syncOrdersHandler(w http.ResponseWriter, r *http.Request) {

	var req struct {
		SyncAll bool `json:"syncAll"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	opts := syncer.Options{
		UserID: userID(r),
		Limit:  cfg.UserSyncMaxOrders,
		Budget: cfg.UserSyncBudget,
	}
	if req.SyncAll && isAdmin(r) {
		opts.UserID = 0
	}

	summary := bs.Syncer.Run(r.Context(), opts)

	writeJSON(w, map[string]any{
		"total":     summary.TotalChecked,
		"processed": len(summary.Results),
		"synced":    summary.Updated,
		"results":   summary.Results,
	})
}

func (bs *BackendServer) syncOrderHandler(w http.ResponseWriter, r *http.Request) {

	orderID, errParse := strconv.Atoi(chi.URLParam(r, "id"))
	if errParse != nil {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return
	}

	order, errOrder := bs.DB.GetOrderForSync(r.Context(), orderID)
	if errors.Is(errOrder, pgx.ErrNoRows) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return
	}
	if errOrder != nil {
		http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		return
	}

	if order.UserID != userID(r) && !isAdmin(r) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return
	}

	result, errSync := bs.Syncer.SyncOne(r.Context(), orderID)
	if errors.Is(errSync, customerror.ErrNotLinked) {
		http.Error(w, "order is not linked to a provider", http.StatusNotFound)
		return
	}
	if errSync != nil {
		http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		return
	}

	writeJSON(w, result)
}

// scheduledSyncHandler is the cron-style trigger, scanning system-wide.
func (bs *BackendServer) scheduledSyncHandler(w http.ResponseWriter, r *http.Request) {

	summary := bs.Syncer.Run(r.Context(), syncer.Options{Limit: cfg.SyncBatchSize})

	writeJSON(w, map[string]any{
		"syncedCount":  summary.Updated,
		"totalChecked": summary.TotalChecked,
		"results":      summary.Results,
	})
}

// providerBalanceHandler refreshes and returns a provider's cached balance.
// Balance queries are rate-limited upstream, so this only fires on an
// explicit admin check.
func (bs *BackendServer) providerBalanceHandler(w http.ResponseWriter, r *http.Request) {

	if !isAdmin(r) {
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		return
	}

	providerID, errParse := strconv.Atoi(chi.URLParam(r, "id"))
	if errParse != nil {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return
	}

	p, errProv := bs.DB.GetProvider(r.Context(), providerID)
	if errors.Is(errProv, pgx.ErrNoRows) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return
	}
	if errProv != nil {
		http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		return
	}

	balance, errBalance := bs.Forwarder.GetBalance(r.Context(), p)
	if errBalance != nil {
		http.Error(w, customerror.Normalize(errBalance), http.StatusBadGateway)
		return
	}

	writeJSON(w, map[string]any{
		"balance":   balance.Balance,
		"currency":  balance.Currency,
		"checkedAt": time.Now().UTC(),
	})
}

// providerServicesHandler pulls a provider's remote catalog for an admin
// importing services.
func (bs *BackendServer) providerServicesHandler(w http.ResponseWriter, r *http.Request) {

	if !isAdmin(r) {
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		return
	}

	providerID, errParse := strconv.Atoi(chi.URLParam(r, "id"))
	if errParse != nil {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return
	}

	p, errProv := bs.DB.GetProvider(r.Context(), providerID)
	if errors.Is(errProv, pgx.ErrNoRows) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return
	}
	if errProv != nil {
		http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		return
	}

	services, errSvc := bs.Forwarder.GetServices(r.Context(), p)
	if errSvc != nil {
		http.Error(w, customerror.Normalize(errSvc), http.StatusBadGateway)
		return
	}

	writeJSON(w, services)
}

func userID(r *http.Request) int {
	id, _ := strconv.Atoi(r.Header.Get(middlewares.UserIDHeader))
	return id
}

func isAdmin(r *http.Request) bool {
	return r.Header.Get(middlewares.AdminHeader) == "true"
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Println("Error while writing response, error: ", err.Error())
	}
}
