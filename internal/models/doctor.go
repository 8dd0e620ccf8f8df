package models

import "go.mongodb.org/mongo-driver/bson/primitive"

type Doctor struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	Name      string             `bson:"name" json:"name" binding:"required"`
	Email     string             `bson:"email" json:"email" binding:"required,email"`
	Specialty string             `bson:"specialty" json:"specialty" binding:"required"`
	Image     string             `bson:"img,omitempty" json:"img,omitempty"`
}
