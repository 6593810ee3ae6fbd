package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/LerianStudio/lib-custody/custody"
)

type updateHeirRequest struct {
	NewHeir string `json:"newHeir" validate:"required"`
}

type withdrawRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type claimRequest struct {
	NewHeir string `json:"newHeir" validate:"required"`
}

type depositRequest struct {
	Amount  decimal.Decimal `json:"amount"`
	Payload string          `json:"payload,omitempty"`
}

type balanceResponse struct {
	Balance decimal.Decimal `json:"balance"`
}

type claimStatusResponse struct {
	CanClaim                  bool  `json:"canClaim"`
	TimeUntilClaimableSeconds int64 `json:"timeUntilClaimableSeconds"`
}

type heirResponse struct {
	Heir custody.Identity `json:"heir"`
}

type ownershipResponse struct {
	Owner custody.Identity `json:"owner"`
	Heir  custody.Identity `json:"heir"`
}

// caller extracts the environment-authenticated principal. Write operations
// require it; the vault's own guards decide whether it is authorized.
func caller(c *fiber.Ctx) (custody.Identity, bool) {
	id := custody.Identity(c.Get(CallerHeader))

	return id, !id.IsZero()
}

func missingCaller(c *fiber.Ctx) error {
	return WriteError(c, fiber.StatusBadRequest, string(custody.ErrorInvalidInput),
		"Invalid Input", CallerHeader+" header is required")
}

func (a *API) parseBody(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return WriteError(c, fiber.StatusBadRequest, string(custody.ErrorInvalidInput),
			"Invalid Input", "failed to parse request body")
	}

	if err := a.validate.Struct(out); err != nil {
		return WriteError(c, fiber.StatusBadRequest, string(custody.ErrorInvalidInput),
			"Invalid Input", err.Error())
	}

	return nil
}

func (a *API) getBalance(c *fiber.Ctx) error {
	return OK(c, balanceResponse{Balance: a.vault.Balance()})
}

func (a *API) getClaimStatus(c *fiber.Ctx) error {
	return OK(c, claimStatusResponse{
		CanClaim:                  a.vault.CanClaim(),
		TimeUntilClaimableSeconds: int64(a.vault.TimeUntilClaimable().Seconds()),
	})
}

func (a *API) getRecord(c *fiber.Ctx) error {
	return OK(c, a.vault.Snapshot())
}

func (a *API) putHeir(c *fiber.Ctx) error {
	id, ok := caller(c)
	if !ok {
		return missingCaller(c)
	}

	var req updateHeirRequest
	if err := a.parseBody(c, &req); err != nil {
		return err
	}

	if err := a.vault.UpdateHeir(c.UserContext(), id, custody.Identity(req.NewHeir)); err != nil {
		return writeDomainError(c, err)
	}

	return OK(c, heirResponse{Heir: a.vault.Heir()})
}

func (a *API) postWithdrawal(c *fiber.Ctx) error {
	id, ok := caller(c)
	if !ok {
		return missingCaller(c)
	}

	var req withdrawRequest
	if err := a.parseBody(c, &req); err != nil {
		return err
	}

	if err := a.vault.Withdraw(c.UserContext(), id, req.Amount); err != nil {
		return writeDomainError(c, err)
	}

	return OK(c, balanceResponse{Balance: a.vault.Balance()})
}

func (a *API) postClaim(c *fiber.Ctx) error {
	id, ok := caller(c)
	if !ok {
		return missingCaller(c)
	}

	var req claimRequest
	if err := a.parseBody(c, &req); err != nil {
		return err
	}

	if err := a.vault.ClaimOwnership(c.UserContext(), id, custody.Identity(req.NewHeir)); err != nil {
		return writeDomainError(c, err)
	}

	return OK(c, ownershipResponse{Owner: a.vault.Owner(), Heir: a.vault.Heir()})
}

func (a *API) postDeposit(c *fiber.Ctx) error {
	id, ok := caller(c)
	if !ok {
		return missingCaller(c)
	}

	var req depositRequest
	if err := a.parseBody(c, &req); err != nil {
		return err
	}

	if err := a.vault.Deposit(c.UserContext(), id, req.Amount, []byte(req.Payload)); err != nil {
		return writeDomainError(c, err)
	}

	return Created(c, balanceResponse{Balance: a.vault.Balance()})
}
