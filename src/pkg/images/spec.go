package images

import (
	"fmt"
	"strings"
)

const openAPITemplate = `%[1]s/images:
  get:
    tags:
      - %[2]s
    summary: List images
    description: Lists the images in the local store in directory enumeration order
    parameters:
      - name: refresh
        in: query
        required: false
        schema:
          type: boolean
          default: true
        description: Re-read the directory instead of returning the cached list
    responses:
      '200':
        description: Images in the store
        content:
          application/json:
            schema:
              type: object
              properties:
                images:
                  type: array
                  items:
                    $ref: '#/components/schemas/Image'
      '503':
        description: Storage directory is unavailable
  post:
    tags:
      - %[2]s
    summary: Add image
    description: Copies the uploaded bytes into the store as <epoch-millis>.jpg
    requestBody:
      required: true
      content:
        multipart/form-data:
          schema:
            type: object
            properties:
              file:
                type: string
                format: binary
                description: The image file to store
            required:
              - file
    responses:
      '201':
        description: Image stored
        content:
          application/json:
            schema:
              $ref: '#/components/schemas/Image'
      '400':
        description: Bad request - missing file field
      '500':
        description: Copy failed
%[1]s/images/{name}:
  delete:
    tags:
      - %[2]s
    summary: Delete image
    description: Removes an image from disk and from the list
    parameters:
      - $ref: '#/components/parameters/ImageName'
    responses:
      '204':
        description: Image deleted
      '404':
        description: No such image
%[1]s/images/{name}/content:
  get:
    tags:
      - %[2]s
    summary: Image content
    parameters:
      - $ref: '#/components/parameters/ImageName'
    responses:
      '200':
        description: Raw image bytes
        content:
          image/jpeg:
            schema:
              type: string
              format: binary
      '404':
        description: No such image
%[1]s/images/{name}/upload:
  post:
    tags:
      - %[2]s
    summary: Upload image
    description: Sends the image to the configured endpoint and returns its raw response
    parameters:
      - $ref: '#/components/parameters/ImageName'
    responses:
      '200':
        description: The endpoint answered; its status and body are passed through
        content:
          application/json:
            schema:
              type: object
              properties:
                session_id:
                  type: string
                image:
                  $ref: '#/components/schemas/Image'
                status_code:
                  type: integer
                body:
                  type: string
      '404':
        description: No such image
      '502':
        description: The endpoint could not be reached
      '503':
        description: No upload endpoint configured
%[1]s/images/{name}/uploads:
  get:
    tags:
      - %[2]s
    summary: Upload history
    parameters:
      - $ref: '#/components/parameters/ImageName'
    responses:
      '200':
        description: Upload attempts, oldest first
%[1]s/status:
  get:
    tags:
      - %[2]s
    summary: Busy state
    responses:
      '200':
        description: Whether an upload is in flight or settling
        content:
          application/json:
            schema:
              $ref: '#/components/schemas/Status'
%[1]s/events:
  get:
    tags:
      - %[2]s
    summary: Busy state stream
    description: Websocket emitting a JSON event on every busy transition
    responses:
      '101':
        description: Switching protocols`

const componentsTemplate = `schemas:
  Image:
    type: object
    properties:
      uri:
        type: string
        description: file:// URI of the stored image
      name:
        type: string
        description: Last path segment of the URI
    required:
      - uri
      - name
  Status:
    type: object
    properties:
      busy:
        type: boolean
      active:
        type: integer
parameters:
  ImageName:
    name: name
    in: path
    required: true
    schema:
      type: string
    description: Display name of the image, e.g. 1700000000000.jpg`

func GetOpenAPISpec(rootPath, tag string) string {
	if rootPath == "" || tag == "" {
		return ""
	}

	// Ensure rootPath doesn't have trailing slash
	rootPath = strings.TrimSuffix(rootPath, "/")

	return fmt.Sprintf(openAPITemplate, rootPath, tag)
}

func GetOpenAPIComponents() string {
	return componentsTemplate
}
