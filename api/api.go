package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/0xcafe-io/iz"
	"github.com/google/uuid"

	appErrors "budgetbuddy/errors"
	"budgetbuddy/internal/auth"
	"budgetbuddy/internal/budget"
	"budgetbuddy/internal/contextutil"
	"budgetbuddy/logging"
)

type Api struct {
	Service *budget.BudgetBuddy
}

func NewApi(service *budget.BudgetBuddy) *Api {
	return &Api{
		Service: service,
	}
}

func requestContext(r *iz.Request) *iz.Request {
	ctx := contextutil.WithTraceID(r.Context(), uuid.New().String())
	r.Request = r.WithContext(ctx)
	return r
}

func respondError(err error) iz.Responder {
	return iz.Respond().Status(httpStatusFromError(err)).JSON(ErrorResponse{Error: errorMessage(err)})
}

func badRequest(msg string) iz.Responder {
	return iz.Respond().Status(400).JSON(ErrorResponse{Error: msg})
}

func devMode() bool {
	return os.Getenv("APP_ENV") != "production"
}

// callerID resolves the acting user: body userId, then ?userId=, then the
// X-User-Id header.
func callerID(r *iz.Request, bodyUserID string) (string, error) {
	if id := strings.TrimSpace(bodyUserID); id != "" {
		return id, nil
	}
	if id := strings.TrimSpace(r.URL.Query().Get("userId")); id != "" {
		return id, nil
	}
	if id := strings.TrimSpace(r.Header.Get("X-User-Id")); id != "" {
		return id, nil
	}
	return "", fmt.Errorf("%w: userId is required", appErrors.ErrInvalidInput)
}

// pickIdentity resolves profile routes: X-User-Id header, then id, then login.
func pickIdentity(r *iz.Request, bodyID, bodyLogin string) (auth.Identity, error) {
	if h := strings.TrimSpace(r.Header.Get("X-User-Id")); h != "" {
		return auth.Identity{UserID: h}, nil
	}
	if id := strings.TrimSpace(r.URL.Query().Get("id")); id != "" {
		return auth.Identity{UserID: id}, nil
	}
	if id := strings.TrimSpace(bodyID); id != "" {
		return auth.Identity{UserID: id}, nil
	}
	login := strings.TrimSpace(r.URL.Query().Get("login"))
	if login == "" {
		login = strings.TrimSpace(bodyLogin)
	}
	if login != "" {
		return auth.Identity{Login: login}, nil
	}
	return auth.Identity{}, fmt.Errorf("%w: Provide X-User-Id header, id, or login", appErrors.ErrInvalidInput)
}

// --- AUTH HANDLERS --- //

func (api *Api) RegisterHandler(r *iz.Request) iz.Responder {
	r = requestContext(r)

	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		msg := fmt.Sprintf("invalid request body: %s", err.Error())
		return iz.Respond().Status(400).JSON(ErrorResponse{Error: msg})
	}

	newUser := auth.NewUser{
		FirstName:     req.FirstName,
		LastName:      req.LastName,
		Login:         req.login(),
		PasswordPlain: req.Password,
	}

	result, err := api.Service.Register(r.Context(), newUser)
	if err != nil {
		return respondError(err)
	}

	resp := RegisterResponse{
		ID:        result.User.ID,
		FirstName: result.User.FirstName,
		LastName:  result.User.LastName,
		Error:     "",
	}
	if devMode() {
		resp.DevVerifyLink = result.VerifyURL
		if result.MailError != "" {
			resp.Mail = &MailStatus{OK: 0, Error: result.MailError}
		} else {
			resp.Mail = &MailStatus{OK: 1}
		}
	}
	return iz.Respond().Status(200).JSON(resp)
}

// LoginHandler always answers 200; failures ride in the payload so the client
// can tell "bad credentials" from "verify your email first".
func (api *Api) LoginHandler(r *iz.Request) iz.Responder {
	r = requestContext(r)

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return iz.Respond().Status(200).JSON(LoginResponse{ID: "0", Error: "Missing login or password"})
	}
	if strings.TrimSpace(req.login()) == "" || req.Password == "" {
		return iz.Respond().Status(200).JSON(LoginResponse{ID: "0", Error: "Missing login or password"})
	}

	user, err := api.Service.Login(r.Context(), req.login(), req.Password)
	if err != nil {
		resp := LoginResponse{ID: "0", Error: errorMessage(err)}
		if errors.Is(err, budget.ErrEmailNotVerified) {
			resp.NeedVerification = true
		}
		return iz.Respond().Status(200).JSON(resp)
	}

	return iz.Respond().Status(200).JSON(LoginResponse{
		ID:        user.ID,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Error:     "",
	})
}

func (api *Api) ResendVerificationHandler(r *iz.Request) iz.Responder {
	r = requestContext(r)

	var req ResendVerificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return badRequest("Missing login")
	}
	login := req.Login
	if login == "" {
		login = req.Email
	}

	result, err := api.Service.ResendVerification(r.Context(), login)
	if err != nil {
		return respondError(err)
	}
	if result.AlreadyVerified {
		return iz.Respond().Status(200).JSON(OkResponse{OK: 1, Message: "Already verified", Error: ""})
	}

	resp := OkResponse{OK: 1, Message: "Verification email sent (or queued).", Error: ""}
	if devMode() {
		resp.DevVerifyLink = result.VerifyURL
		if result.MailError != "" {
			resp.Mail = &MailStatus{OK: 0, Error: result.MailError}
		} else {
			resp.Mail = &MailStatus{OK: 1}
		}
	}
	return iz.Respond().Status(200).JSON(resp)
}

func (api *Api) VerifyEmailHandler(r *iz.Request) iz.Responder {
	r = requestContext(r)

	token := strings.TrimSpace(r.PathValue("token"))
	if token == "" {
		token = strings.TrimSpace(r.URL.Query().Get("token"))
	}
	if token == "" {
		return badRequest("Missing token")
	}

	if err := api.Service.VerifyEmail(r.Context(), token); err != nil {
		return respondError(err)
	}
	return iz.Respond().Status(200).JSON(OkResponse{OK: 1, Message: "Email verified successfully", Error: ""})
}

// --- PASSWORD HANDLERS --- //

func (api *Api) ValidateResetTokenHandler(r *iz.Request) iz.Responder {
	r = requestContext(r)

	token := strings.TrimSpace(r.URL.Query().Get("token"))
	if token == "" {
		return badRequest("Missing token")
	}
	if err := api.Service.ValidateResetToken(r.Context(), token); err != nil {
		return respondError(err)
	}
	return iz.Respond().Status(200).JSON(OkResponse{OK: 1, Mode: "validate", Message: "Token is valid", Error: ""})
}

func (api *Api) RequestPasswordResetHandler(r *iz.Request) iz.Responder {
	r = requestContext(r)

	var req PasswordResetRequestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return badRequest("Missing login")
	}
	login := req.Login
	if login == "" {
		login = req.Email
	}

	result, err := api.Service.RequestPasswordReset(r.Context(), login)
	if err != nil {
		return respondError(err)
	}

	resp := OkResponse{OK: 1, Mode: "request", Message: "If this account exists, a reset link has been sent.", Error: ""}
	if devMode() {
		resp.DevResetLink = result.ResetURL
	}
	return iz.Respond().Status(200).JSON(resp)
}

func (api *Api) ResetPasswordHandler(r *iz.Request) iz.Responder {
	r = requestContext(r)

	var req PasswordResetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return badRequest("token and newPassword required")
	}
	if req.Token == "" || req.NewPassword == "" {
		return badRequest("token and newPassword required")
	}

	if err := api.Service.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		return respondError(err)
	}
	return iz.Respond().Status(200).JSON(OkResponse{OK: 1, Mode: "reset", Message: "Password reset successfully", Error: ""})
}

func (api *Api) ChangePasswordHandler(r *iz.Request) iz.Responder {
	r = requestContext(r)

	var req PasswordChangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return badRequest("oldPassword and newPassword required")
	}
	if req.OldPassword == "" || req.NewPassword == "" {
		return badRequest("oldPassword and newPassword required")
	}

	identity := auth.Identity{
		UserID: strings.TrimSpace(r.Header.Get("X-User-Id")),
		Login:  req.Login,
	}
	if identity.IsZero() {
		return badRequest("Provide login or X-User-Id")
	}

	if err := api.Service.ChangePassword(r.Context(), identity, req.OldPassword, req.NewPassword); err != nil {
		return respondError(err)
	}
	return iz.Respond().Status(200).JSON(OkResponse{OK: 1, Mode: "change", Message: "Password updated successfully", Error: ""})
}

// --- BUDGET HANDLERS --- //

func (api *Api) ListBudgetsHandler(r *iz.Request) iz.Responder {
	r = requestContext(r)

	userID, err := callerID(r, "")
	if err != nil {
		return respondError(err)
	}
	filter, err := BudgetListCheckParams(r.URL.Query())
	if err != nil {
		return respondError(err)
	}

	page, err := api.Service.ListBudgets(r.Context(), userID, filter)
	if err != nil {
		return respondError(err)
	}

	items := make([]BudgetItem, 0, len(page.Items))
	for _, b := range page.Items {
		items = append(items, BudgetToHttp(b))
	}
	return iz.Respond().Status(200).JSON(BudgetListResponse{
		Items:      items,
		Limit:      page.Limit,
		Offset:     page.Offset,
		NextOffset: page.NextOffset,
		Error:      "",
	})
}

func (api *Api) GetBudgetHandler(r *iz.Request) iz.Responder {
	r = requestContext(r)

	userID, err := callerID(r, "")
	if err != nil {
		return respondError(err)
	}
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		return badRequest("id is required")
	}

	b, err := api.Service.GetBudget(r.Context(), userID, id)
	if err != nil {
		return respondError(err)
	}
	return iz.Respond().Status(200).JSON(BudgetItemResponse{Item: BudgetToHttp(b), Error: ""})
}

func (api *Api) CreateBudgetHandler(r *iz.Request) iz.Responder {
	r = requestContext(r)

	var req CreateBudgetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		msg := fmt.Sprintf("invalid request body: %s", err.Error())
		return iz.Respond().Status(400).JSON(ErrorResponse{Error: msg})
	}

	userID, err := callerID(r, req.UserID)
	if err != nil {
		return respondError(err)
	}

	total := req.Total
	if total == nil {
		total = req.Limit
	}
	if total == nil {
		return badRequest("total/limit must be a non-negative number")
	}

	var startDate, endDate *time.Time
	if req.StartDate != nil {
		startDate, err = ParseDateMaybe(*req.StartDate)
		if err != nil {
			return respondError(err)
		}
	}
	if req.EndDate != nil {
		endDate, err = ParseDateMaybe(*req.EndDate)
		if err != nil {
			return respondError(err)
		}
	}

	b, err := api.Service.CreateBudget(r.Context(), userID, budget.CreateBudgetRequest{
		Name:       req.Name,
		Period:     req.Period,
		Limit:      *total,
		Categories: categoriesFromHttp(req.Categories),
		StartDate:  startDate,
		EndDate:    endDate,
	})
	if err != nil {
		return respondError(err)
	}
	return iz.Respond().Status(200).JSON(BudgetItemResponse{Item: BudgetToHttp(b), Error: ""})
}

func (api *Api) UpdateBudgetHandler(r *iz.Request) iz.Responder {
	r = requestContext(r)

	var req UpdateBudgetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		msg := fmt.Sprintf("invalid request body: %s", err.Error())
		return iz.Respond().Status(400).JSON(ErrorResponse{Error: msg})
	}

	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		id = strings.TrimSpace(req.ID)
	}
	if id == "" {
		return badRequest("id is required")
	}

	userID, err := callerID(r, req.UserID)
	if err != nil {
		return respondError(err)
	}

	update := budget.BudgetUpdate{
		Name:       req.Name,
		Period:     req.Period,
		Categories: categoriesFromHttp(req.Categories),
	}
	if req.Total != nil {
		update.Limit = req.Total
	} else if req.Limit != nil {
		update.Limit = req.Limit
	}
	if req.StartDate != nil {
		if strings.TrimSpace(*req.StartDate) == "" {
			update.ClearStart = true
		} else {
			t, err := ParseDateMaybe(*req.StartDate)
			if err != nil {
				return respondError(err)
			}
			update.StartDate = t
		}
	}
	if req.EndDate != nil {
		if strings.TrimSpace(*req.EndDate) == "" {
			update.ClearEnd = true
		} else {
			t, err := ParseDateMaybe(*req.EndDate)
			if err != nil {
				return respondError(err)
			}
			update.EndDate = t
		}
	}

	b, err := api.Service.UpdateBudget(r.Context(), userID, id, update)
	if err != nil {
		return respondError(err)
	}
	return iz.Respond().Status(200).JSON(BudgetItemResponse{Item: BudgetToHttp(b), Error: ""})
}

func (api *Api) DeleteBudgetHandler(r *iz.Request) iz.Responder {
	r = requestContext(r)

	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		id = strings.TrimSpace(r.URL.Query().Get("id"))
	}
	if id == "" {
		return badRequest("id is required")
	}
	userID, err := callerID(r, "")
	if err != nil {
		return respondError(err)
	}

	if err := api.Service.DeleteBudget(r.Context(), userID, id); err != nil {
		return respondError(err)
	}
	return iz.Respond().Status(200).JSON(DeleteResponse{OK: 1, DeletedID: id, Error: ""})
}

// --- TRANSACTION HANDLERS --- //

func (api *Api) transactionRequestFromBody(r *iz.Request) (string, budget.TransactionRequest, error) {
	var req SaveTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return "", budget.TransactionRequest{}, fmt.Errorf("%w: invalid request body: %v", appErrors.ErrInvalidInput, err)
	}

	userID, err := callerID(r, req.UserID)
	if err != nil {
		return "", budget.TransactionRequest{}, err
	}

	date, err := ParseDateMaybe(req.Date)
	if err != nil {
		return "", budget.TransactionRequest{}, fmt.Errorf("%w: Invalid date", appErrors.ErrInvalidInput)
	}

	tr := budget.TransactionRequest{
		Type:          req.Type,
		Amount:        req.Amount,
		Period:        req.Period,
		Category:      req.Category,
		Description:   req.Description,
		PaymentMethod: req.PaymentMethod,
	}
	if date != nil {
		tr.Date = *date
	}
	return userID, tr, nil
}

func (api *Api) SaveTransactionHandler(r *iz.Request) iz.Responder {
	r = requestContext(r)

	userID, tr, err := api.transactionRequestFromBody(r)
	if err != nil {
		return respondError(err)
	}

	t, err := api.Service.CreateTransaction(r.Context(), userID, tr)
	if err != nil {
		return respondError(err)
	}
	return iz.Respond().Status(200).JSON(TransactionItemResponse{Item: TransactionToHttp(t), Error: ""})
}

func (api *Api) UpdateTransactionHandler(r *iz.Request) iz.Responder {
	r = requestContext(r)

	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		return badRequest("id is required")
	}

	userID, tr, err := api.transactionRequestFromBody(r)
	if err != nil {
		return respondError(err)
	}

	t, err := api.Service.UpdateTransaction(r.Context(), userID, id, tr)
	if err != nil {
		return respondError(err)
	}
	return iz.Respond().Status(200).JSON(TransactionItemResponse{Item: TransactionToHttp(t), Error: ""})
}

func (api *Api) ListTransactionsHandler(r *iz.Request) iz.Responder {
	r = requestContext(r)

	userID, err := callerID(r, "")
	if err != nil {
		return respondError(err)
	}
	filter, err := TransactionListCheckParams(r.URL.Query())
	if err != nil {
		return respondError(err)
	}

	page, err := api.Service.ListTransactions(r.Context(), userID, filter)
	if err != nil {
		return respondError(err)
	}

	items := make([]TransactionItem, 0, len(page.Items))
	for _, t := range page.Items {
		items = append(items, TransactionToHttp(t))
	}
	return iz.Respond().Status(200).JSON(TransactionListResponse{
		Items:      items,
		Limit:      page.Limit,
		Offset:     page.Offset,
		NextOffset: page.NextOffset,
		Error:      "",
	})
}

func (api *Api) GetTransactionHandler(r *iz.Request) iz.Responder {
	r = requestContext(r)

	userID, err := callerID(r, "")
	if err != nil {
		return respondError(err)
	}
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		return badRequest("id is required")
	}

	t, err := api.Service.GetTransaction(r.Context(), userID, id)
	if err != nil {
		return respondError(err)
	}
	return iz.Respond().Status(200).JSON(TransactionItemResponse{Item: TransactionToHttp(t), Error: ""})
}

func (api *Api) DeleteTransactionHandler(r *iz.Request) iz.Responder {
	r = requestContext(r)

	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		return badRequest("id is required")
	}
	userID, err := callerID(r, "")
	if err != nil {
		return respondError(err)
	}

	if err := api.Service.DeleteTransaction(r.Context(), userID, id); err != nil {
		return respondError(err)
	}
	return iz.Respond().Status(200).JSON(DeleteResponse{OK: 1, DeletedID: id, Error: ""})
}

// --- SUMMARY HANDLER --- //

func (api *Api) SummaryHandler(r *iz.Request) iz.Responder {
	r = requestContext(r)

	userID, err := callerID(r, "")
	if err != nil {
		return respondError(err)
	}

	params := r.URL.Query()
	q := budget.SummaryQuery{
		Period:   params.Get("period"),
		BudgetID: strings.TrimSpace(params.Get("budgetId")),
	}
	q.From, err = ParseDateMaybe(params.Get("from"))
	if err != nil {
		return respondError(err)
	}
	q.To, err = ParseDateMaybe(params.Get("to"))
	if err != nil {
		return respondError(err)
	}

	summary, err := api.Service.Summarize(r.Context(), userID, q)
	if err != nil {
		logging.Logger.Errorf("[TraceID=%s] | summary failed | Error: %v", contextutil.TraceIDFromContext(r.Context()), err)
		return respondError(err)
	}
	return iz.Respond().Status(200).JSON(SummaryToHttp(summary))
}

// --- USER HANDLERS --- //

func (api *Api) GetUserHandler(r *iz.Request) iz.Responder {
	r = requestContext(r)

	identity, err := pickIdentity(r, "", "")
	if err != nil {
		return respondError(err)
	}

	user, err := api.Service.GetProfile(r.Context(), identity)
	if err != nil {
		return respondError(err)
	}
	return iz.Respond().Status(200).JSON(UserItemResponse{Item: UserToHttp(user), Error: ""})
}

// UpdateUserHandler decodes the body into a raw map so "present but blank"
// can be told apart from "absent", and sensitive fields can be rejected by key.
func (api *Api) UpdateUserHandler(r *iz.Request) iz.Responder {
	r = requestContext(r)

	var raw map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		msg := fmt.Sprintf("invalid request body: %s", err.Error())
		return iz.Respond().Status(400).JSON(ErrorResponse{Error: msg})
	}

	for _, bad := range []string{"password", "passwordHash", "isVerified", "login"} {
		if _, ok := raw[bad]; ok {
			return badRequest(fmt.Sprintf("Field '%s' cannot be updated here", bad))
		}
	}

	rawString := func(key string) (*string, error) {
		v, ok := raw[key]
		if !ok {
			return nil, nil
		}
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return nil, fmt.Errorf("%w: invalid %s", appErrors.ErrInvalidInput, key)
		}
		return &s, nil
	}

	bodyID, err := rawString("id")
	if err != nil {
		return respondError(err)
	}
	var bodyIDStr string
	if bodyID != nil {
		bodyIDStr = *bodyID
	}
	identity, err := pickIdentity(r, bodyIDStr, "")
	if err != nil {
		return respondError(err)
	}

	firstName, err := rawString("firstName")
	if err != nil {
		return respondError(err)
	}
	lastName, err := rawString("lastName")
	if err != nil {
		return respondError(err)
	}

	user, err := api.Service.UpdateProfile(r.Context(), identity, firstName, lastName)
	if err != nil {
		return respondError(err)
	}
	return iz.Respond().Status(200).JSON(UserItemResponse{Item: UserToHttp(user), Error: ""})
}

// --- HEALTH --- //

func (api *Api) HealthHandler(r *iz.Request) iz.Responder {
	return iz.Respond().Status(200).JSON(OkResponse{
		OK:      1,
		Message: fmt.Sprintf("storage: %s", api.Service.StorageType),
		Error:   "",
	})
}
