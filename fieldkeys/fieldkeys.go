// Package fieldkeys names the Firestore collections, document fields and storage paths shared
// by the gateway components.
package fieldkeys

const (
	// UsersCollection holds one profile document per identity, keyed by the identity id.
	UsersCollection = "users"

	// GalleryCollection holds the gallery item documents.
	GalleryCollection = "users_photo_gallery"

	// IDKey is the id field duplicated inside profile documents.
	IDKey = "id"

	// EmailKey is the profile email field, used for lookups and uniqueness checks.
	EmailKey = "email"

	// NameKey is the profile display name field.
	NameKey = "name"

	// PhotoURLKey is the profile photo download URL field.
	PhotoURLKey = "photoURL"

	// PhoneNumberKey is the profile phone number field.
	PhoneNumberKey = "phoneNumber"

	// SignUpMethodKey records how the account was created.
	SignUpMethodKey = "signUpMethod"

	// DeletedKey flags a logically removed document.
	DeletedKey = "deleted"

	// CreatedAtKey is the creation timestamp of any document.
	CreatedAtKey = "createdAt"

	// UpdatedAtKey is the last modification timestamp of any document.
	UpdatedAtKey = "updatedAt"

	// UserKey is the gallery item reference to the owning profile document.
	UserKey = "user"

	// ImgKey is the gallery item download URL field.
	ImgKey = "img"

	// PathKey is the storage path of the gallery item blob.
	PathKey = "path"

	// TitleKey is the gallery item title field.
	TitleKey = "title"

	// DescriptionKey is the optional gallery item description field.
	DescriptionKey = "description"

	// SignUpEmailAndPassword is the only sign-up method the gateway offers.
	SignUpEmailAndPassword = "EmailAndPassword"

	// ProfilePhotoPrefix is the storage folder of profile photos; the object name is the identity id.
	ProfilePhotoPrefix = "images/usersPhotoUrls/"

	// GalleryPhotoPrefix is the storage folder of gallery blobs.
	GalleryPhotoPrefix = "images/users_photo_gallery/"

	// DefaultContentType is used for uploads that do not declare one.
	DefaultContentType = "image/jpeg"
)
