package models

// Request models
type AdminLoginRequest struct {
	AdminID     string `json:"adminId" binding:"required"`
	Password    string `json:"password" binding:"required"`
	SecurityKey string `json:"securityKey" binding:"required"`
}

type RecordRentRequest struct {
	UnitID      string `json:"unitId" binding:"required"`
	Amount      int64  `json:"amount" binding:"required,gt=0"`
	PeriodYear  *int   `json:"periodYear" binding:"omitempty,gte=2000"`
	PeriodMonth *int   `json:"periodMonth" binding:"omitempty,gte=0,lte=11"`
}

// Response models
type AdminLoginResponse struct {
	Success   bool   `json:"success"`
	Role      string `json:"role"`
	Token     string `json:"token"`
	ExpiresIn int    `json:"expiresIn"`
}

type BuilderSummary struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Email         string  `json:"email"`
	Plan          string  `json:"plan"`
	TotalProjects int     `json:"totalProjects"`
	TotalUnits    int     `json:"totalUnits"`
	CreatedAt     *string `json:"createdAt"`
}

type BuilderListResponse struct {
	Success  bool             `json:"success"`
	Builders []BuilderSummary `json:"builders"`
}

type BuilderDetailResponse struct {
	Success  bool      `json:"success"`
	Builder  Builder   `json:"builder"`
	Projects []Project `json:"projects"`
	Units    []Unit    `json:"units"`
}

type RentPaymentResponse struct {
	Success bool        `json:"success"`
	Payment RentPayment `json:"payment"`
}

type InvoiceListResponse struct {
	Success  bool      `json:"success"`
	Invoices []Invoice `json:"invoices"`
}

type InvoiceResponse struct {
	Success bool    `json:"success"`
	Invoice Invoice `json:"invoice"`
}

type NotificationListResponse struct {
	Success       bool           `json:"success"`
	Notifications []Notification `json:"notifications"`
}

type ErrorResponse struct {
	Status  string `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
