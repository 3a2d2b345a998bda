package handlers

import (
	"strconv"
	"strings"

	"secondchance/internal/models"
	"secondchance/internal/services"

	"github.com/gofiber/fiber/v2"
)

// ItemHandler handles HTTP requests for catalog items.
type ItemHandler struct {
	itemService *services.ItemService
}

// NewItemHandler creates a new ItemHandler.
func NewItemHandler(itemService *services.ItemService) *ItemHandler {
	return &ItemHandler{
		itemService: itemService,
	}
}

// RegisterRoutes registers the item and search routes. Reads are public,
// mutations go through protected.
func (h *ItemHandler) RegisterRoutes(router fiber.Router, protected fiber.Handler) {
	items := router.Group("/secondchance/items")
	items.Get("/", h.HandleList)
	items.Post("/", protected, h.HandleCreate)
	items.Get("/:id", h.HandleGet)
	items.Put("/:id", protected, h.HandleUpdate)
	items.Delete("/:id", protected, h.HandleDelete)

	router.Get("/secondchance/search", h.HandleSearch)
}

// HandleList returns every item.
func (h *ItemHandler) HandleList(c *fiber.Ctx) error {
	items, err := h.itemService.List(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(items)
}

// HandleGet returns one item.
func (h *ItemHandler) HandleGet(c *fiber.Ctx) error {
	item, err := h.itemService.GetByID(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(item)
}

// HandleCreate accepts either a JSON body or a multipart form with an
// optional "file" attachment.
func (h *ItemHandler) HandleCreate(c *fiber.Ctx) error {
	var (
		in  services.CreateItemInput
		att *services.Attachment
	)

	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		form, err := c.MultipartForm()
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "File upload failed"})
		}
		if in, err = createInputFromForm(form.Value); err != nil {
			return respondError(c, err)
		}

		if files := form.File["file"]; len(files) > 0 {
			fh := files[0]
			f, err := fh.Open()
			if err != nil {
				return respondError(c, &services.UploadError{Reason: "unreadable file", Err: err})
			}
			defer f.Close()
			att = &services.Attachment{Filename: fh.Filename, Size: fh.Size, Content: f}
		}
	} else if err := c.BodyParser(&in); err != nil {
		return badRequestBody(c)
	}

	item, err := h.itemService.Create(c.UserContext(), in, att)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(item)
}

func createInputFromForm(values map[string][]string) (services.CreateItemInput, error) {
	get := func(key string) string {
		if v := values[key]; len(v) > 0 {
			return v[0]
		}
		return ""
	}

	in := services.CreateItemInput{
		Name:        get("name"),
		Category:    get("category"),
		Condition:   get("condition"),
		PostedBy:    get("posted_by"),
		Zipcode:     get("zipcode"),
		Description: get("description"),
	}
	if raw := get("age_days"); raw != "" {
		days, err := strconv.Atoi(raw)
		if err != nil {
			return in, services.InvalidField("body", "age_days", "Age in days must be a whole number")
		}
		in.AgeDays = &days
	}
	return in, nil
}

// HandleUpdate applies a partial update to an item.
func (h *ItemHandler) HandleUpdate(c *fiber.Ctx) error {
	var patch models.ItemPatch
	if err := c.BodyParser(&patch); err != nil {
		return badRequestBody(c)
	}

	item, err := h.itemService.Update(c.UserContext(), c.Params("id"), patch)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"message": "Update successful",
		"item":    item,
	})
}

// HandleDelete removes an item.
func (h *ItemHandler) HandleDelete(c *fiber.Ctx) error {
	if err := h.itemService.Delete(c.UserContext(), c.Params("id")); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Item deleted successfully"})
}

// HandleSearch filters items by name, category, condition and maximum age.
func (h *ItemHandler) HandleSearch(c *fiber.Ctx) error {
	filter := models.ItemFilter{
		Name:      c.Query("name"),
		Category:  c.Query("category"),
		Condition: c.Query("condition"),
	}
	if raw := c.Query("age_years"); raw != "" {
		years, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return respondError(c, services.InvalidField("query", "age_years", "Age in years must be a number"))
		}
		filter.MaxAgeYears = &years
	}

	items, err := h.itemService.Search(c.UserContext(), filter)
	if err != nil {
		return err
	}
	return c.JSON(items)
}
