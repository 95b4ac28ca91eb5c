package controllers

import (
	"net/http"
	"strings"

	"github.com/etsong/catalogbackend/repository"
	"github.com/etsong/catalogbackend/utils"
	"github.com/gin-gonic/gin"
)

// UploadProductImages stores the posted images in the bucket first, then
// appends the public URLs to the document. If the document update fails the
// freshly uploaded objects are removed again, best effort.
func UploadProductImages(repo repository.ProductRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		id := c.Param("id")
		details, err := repo.GetByID(ctx, id)
		if err != nil {
			writeRepoError(c, err)
			return
		}

		form, err := c.MultipartForm()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid multipart form"})
			return
		}
		files := form.File["images"]
		if len(files) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing images"})
			return
		}
		if len(details.Product.ImageUrls)+len(files) > utils.MaxProductImages() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "too many images for this product"})
			return
		}

		gcsClient, bucket, err := utils.NewGCSClient(ctx)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create storage client"})
			return
		}
		defer gcsClient.Close()

		slug := details.Product.Slug
		if slug == "" {
			slug = utils.GenerateSlug(details.Product.Name)
		}

		urls, err := utils.UploadProductImagesToGCS(ctx, gcsClient, bucket, slug, files)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		product, err := repo.AddImageURLs(ctx, id, urls)
		if err != nil {
			objectNames := make([]string, 0, len(urls))
			for _, u := range urls {
				objectNames = append(objectNames, strings.TrimPrefix(u, "https://storage.googleapis.com/"+bucket+"/"))
			}
			_ = utils.DeleteGCSObjects(ctx, gcsClient, bucket, objectNames)
			writeRepoError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"imageUrls": product.ImageUrls})
	}
}
